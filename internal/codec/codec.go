// Package codec contains the poll-based encoder interface and the
// asynchronous engine that software encoders are built on.
package codec

import (
	"errors"
	"image/draw"
	"time"
)

// statuses returned by DequeueOutputBuffer and DequeueInputBuffer
// in place of a buffer index.
const (
	InfoTryAgainLater        = -1
	InfoOutputFormatChanged  = -2
	InfoOutputBuffersChanged = -3
)

// BufferFlag is a flag attached to a buffer.
type BufferFlag int

// buffer flags.
const (
	FlagKeyFrame BufferFlag = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

// BufferInfo describes an output buffer.
type BufferInfo struct {
	Offset int
	Size   int
	PTS    int64 // microseconds
	Flags  BufferFlag
}

// EncodedPacket is a compressed buffer forwarded to the muxer.
type EncodedPacket struct {
	Data  []byte
	PTS   int64 // microseconds
	Flags BufferFlag
}

// IsKeyFrame returns whether the packet can be decoded independently.
func (p *EncodedPacket) IsKeyFrame() bool {
	return (p.Flags & FlagKeyFrame) != 0
}

// errors.
var (
	ErrNotConfigured  = errors.New("encoder is not configured")
	ErrNotStarted     = errors.New("encoder is not started")
	ErrInvalidIndex   = errors.New("invalid buffer index")
	ErrSurfaceBusy    = errors.New("encoder input queue is full")
	ErrUnknownEncoder = errors.New("unknown encoder")
)

// Config is the configuration of an encoder.
type Config struct {
	// video
	Width            int
	Height           int
	Bitrate          int
	FrameRate        int
	KeyframeInterval int // seconds

	// audio
	SampleRate   int
	ChannelCount int
}

// Encoder is an asynchronous encoder that exchanges buffers through polling.
type Encoder interface {
	Configure(Config) error
	Start() error
	Stop() error
	Release()
	OutputFormat() *Format
	DequeueOutputBuffer(info *BufferInfo, timeout time.Duration) int
	OutputBuffer(index int) []byte
	ReleaseOutputBuffer(index int)
}

// VideoEncoder is an encoder fed through a surface.
type VideoEncoder interface {
	Encoder
	CreateInputSurface() (Surface, error)
	SignalEndOfInputStream() error
}

// AudioEncoder is an encoder fed through input buffers.
type AudioEncoder interface {
	Encoder
	DequeueInputBuffer(timeout time.Duration) int
	InputBuffer(index int) []byte
	QueueInputBuffer(index int, size int, pts int64, flags BufferFlag) error
}

// Surface is a render target whose content is submitted to an encoder.
type Surface interface {
	Image() draw.Image
	SetPresentationTime(pts time.Duration)
	SwapBuffers() error
	Release()
}

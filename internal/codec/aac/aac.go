// Package aac contains a MPEG-4 Audio (AAC-LC) encoder based on the native FFmpeg encoder.
package aac

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// InputBufferSize is the size of each input buffer.
const InputBufferSize = 8192

const defaultBitrate = 128000

func init() {
	codec.RegisterAudio("aac", func(parent logger.Writer) codec.AudioEncoder {
		return &Encoder{Parent: parent}
	})
}

func channelLayout(count int) (astiav.ChannelLayout, error) {
	switch count {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	}
	return astiav.ChannelLayout{}, fmt.Errorf("unsupported channel count: %d", count)
}

// Encoder is an AAC-LC audio encoder fed with little-endian 16-bit samples.
type Encoder struct {
	Parent logger.Writer

	codec.Engine
	configured bool
}

// Log implements logger.Writer.
func (e *Encoder) Log(level logger.Level, format string, args ...any) {
	if e.Parent != nil {
		e.Parent.Log(level, "[aac] "+format, args...)
	}
}

// Configure implements codec.Encoder.
func (e *Encoder) Configure(conf codec.Config) error {
	if conf.SampleRate <= 0 {
		return fmt.Errorf("unsupported sample rate: %d", conf.SampleRate)
	}

	layout, err := channelLayout(conf.ChannelCount)
	if err != nil {
		return err
	}

	bitrate := conf.Bitrate
	if bitrate <= 0 {
		bitrate = defaultBitrate
	}

	p := &processor{
		sampleRate:   conf.SampleRate,
		channelCount: conf.ChannelCount,
		layout:       layout,
	}
	err = p.open(bitrate)
	if err != nil {
		return err
	}

	e.Engine = codec.Engine{
		InputBufferCount:  4,
		InputBufferSize:   InputBufferSize,
		OutputBufferCount: 16,
		Processor:         p,
		Parent:            e,
	}
	e.Engine.Initialize()
	e.configured = true

	e.Log(logger.Debug, "configured %d Hz, %d channels, %d bit/s, frame size %d",
		conf.SampleRate, conf.ChannelCount, bitrate, p.frameSize)

	return nil
}

// Start implements codec.Encoder.
func (e *Encoder) Start() error {
	if !e.configured {
		return codec.ErrNotConfigured
	}
	return e.Engine.Start()
}

// Release implements codec.Encoder.
func (e *Encoder) Release() {
	if e.configured {
		e.Engine.Release()
	}
}

// DequeueInputBuffer implements codec.AudioEncoder.
func (e *Encoder) DequeueInputBuffer(timeout time.Duration) int {
	if !e.configured {
		return codec.InfoTryAgainLater
	}
	return e.Engine.DequeueInputBuffer(timeout)
}

type processor struct {
	sampleRate   int
	channelCount int
	layout       astiav.ChannelLayout

	cc        *astiav.CodecContext
	frame     *astiav.Frame
	pkt       *astiav.Packet
	frameSize int
	config    []byte
	format    *codec.Format

	formatSent bool
	ptsSet     bool
	basePTS    int64
	pending    []byte
	samplesIn  int64
	packetsOut int64
}

func (p *processor) open(bitrate int) error {
	c := astiav.FindEncoder(astiav.CodecIDAac)
	if c == nil {
		return fmt.Errorf("AAC encoder not found")
	}

	p.cc = astiav.AllocCodecContext(c)
	if p.cc == nil {
		return fmt.Errorf("unable to allocate codec context")
	}

	p.cc.SetSampleFormat(astiav.SampleFormatFltp)
	p.cc.SetSampleRate(p.sampleRate)
	p.cc.SetChannelLayout(p.layout)
	p.cc.SetBitRate(int64(bitrate))
	p.cc.SetTimeBase(astiav.NewRational(1, p.sampleRate))
	p.cc.SetFlags(p.cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))

	err := p.cc.Open(c, nil)
	if err != nil {
		p.cc.Free()
		return fmt.Errorf("unable to open encoder: %w", err)
	}

	p.frameSize = p.cc.FrameSize()
	p.config = append([]byte(nil), p.cc.ExtraData()...)

	var conf mpeg4audio.AudioSpecificConfig
	err = conf.Unmarshal(p.config)
	if err != nil {
		p.cc.Free()
		return fmt.Errorf("invalid audio specific config: %w", err)
	}

	p.format = &codec.Format{
		Kind:         codec.KindAudio,
		MIME:         codec.MIMEMPEG4Audio,
		SampleRate:   p.sampleRate,
		ChannelCount: p.channelCount,
		Codec: &mp4.CodecMPEG4Audio{
			Config: conf,
		},
	}

	p.frame = astiav.AllocFrame()
	p.pkt = astiav.AllocPacket()

	return nil
}

func (p *processor) Process(job *codec.Job, out codec.Emitter) error {
	if !p.formatSent {
		p.formatSent = true
		out.EmitFormat(p.format)
		out.EmitBuffer(p.config, job.PTS, codec.FlagCodecConfig)
	}

	if !p.ptsSet {
		p.ptsSet = true
		p.basePTS = job.PTS
	}

	p.pending = append(p.pending, job.Data...)

	frameBytes := p.frameSize * 2 * p.channelCount

	for len(p.pending) >= frameBytes {
		err := p.sendFrame(p.pending[:frameBytes], p.frameSize)
		if err != nil {
			return err
		}
		p.pending = p.pending[frameBytes:]

		err = p.receive(out)
		if err != nil {
			return err
		}
	}

	// the remainder is moved to the front, so that the consumed part can be collected.
	p.pending = append([]byte(nil), p.pending...)

	return nil
}

func (p *processor) Flush(out codec.Emitter) error {
	// the last frame can be shorter than the frame size.
	n := len(p.pending) / (2 * p.channelCount)
	if n != 0 {
		err := p.sendFrame(p.pending[:n*2*p.channelCount], n)
		if err != nil {
			return err
		}
	}
	p.pending = nil

	err := p.cc.SendFrame(nil)
	if err != nil {
		return err
	}

	return p.receive(out)
}

func (p *processor) Close() {
	p.pkt.Free()
	p.frame.Free()
	p.cc.Free()
}

// sendFrame converts interleaved 16-bit samples into planar floats and submits them.
func (p *processor) sendFrame(data []byte, sampleCount int) error {
	p.frame.SetNbSamples(sampleCount)
	p.frame.SetChannelLayout(p.layout)
	p.frame.SetSampleFormat(astiav.SampleFormatFltp)
	p.frame.SetSampleRate(p.sampleRate)
	p.frame.SetPts(p.samplesIn)
	defer p.frame.Unref()

	err := p.frame.AllocBuffer(0)
	if err != nil {
		return err
	}

	err = p.frame.Data().SetBytes(planarFloats(data, p.channelCount), 1)
	if err != nil {
		return err
	}

	err = p.cc.SendFrame(p.frame)
	if err != nil {
		return err
	}

	p.samplesIn += int64(sampleCount)
	return nil
}

func (p *processor) receive(out codec.Emitter) error {
	for {
		err := p.cc.ReceivePacket(p.pkt)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil
		}
		if err != nil {
			return err
		}

		data := p.pkt.Data()
		p.pkt.Unref()

		// timestamps follow the input timeline one frame at a time,
		// so that the encoder delay does not produce negative values.
		pts := p.basePTS + p.packetsOut*int64(p.frameSize)*1000000/int64(p.sampleRate)
		p.packetsOut++

		out.EmitBuffer(data, pts, codec.FlagKeyFrame)
	}
}

func planarFloats(data []byte, channelCount int) []byte {
	n := len(data) / (2 * channelCount)
	out := make([]byte, n*channelCount*4)

	for i := 0; i < n; i++ {
		for c := 0; c < channelCount; c++ {
			v := int16(binary.LittleEndian.Uint16(data[(i*channelCount+c)*2:]))
			binary.LittleEndian.PutUint32(out[(c*n+i)*4:], math.Float32bits(float32(v)/32768))
		}
	}

	return out
}

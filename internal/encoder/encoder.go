// Package encoder contains the bridges between encoders and the muxer.
package encoder

import (
	"errors"
	"time"

	"github.com/bluenviron/camrecorder/internal/codec"
)

const (
	defaultPollTimeout = 10 * time.Millisecond
	defaultDrainBudget = 500
)

// errors.
var (
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrFormatChangedTwice  = errors.New("format changed twice")
	ErrIllegalState        = errors.New("illegal state")
	ErrDrainBudgetExceeded = errors.New("encoder did not reach end of stream")
)

// Sink receives formats and packets from the bridges.
// WriteSample must not retain the packet data after returning.
type Sink interface {
	RegisterFormat(track codec.Kind, format *codec.Format) error
	WriteSample(track codec.Kind, pkt *codec.EncodedPacket) error
	Started() bool
}

// State is the state of a bridge.
type State int

// states.
const (
	StateIdle State = iota
	StateEncoding
	StateDraining
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEncoding:
		return "encoding"
	case StateDraining:
		return "draining"
	}
	return "stopped"
}

// DrainResult is the outcome of a single poll of the encoder output.
type DrainResult int

// results.
const (
	// nothing was ready before the poll timeout.
	NoOutput DrainResult = iota

	// the encoder reported its output format.
	FormatReady

	// a packet was forwarded, or suppressed if it was a config buffer.
	PacketReady

	// the end-of-stream buffer was observed.
	EndOfStream

	// the poll returned a status that is not meaningful for an encoder.
	Ignored
)

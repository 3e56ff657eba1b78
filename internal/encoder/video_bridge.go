package encoder

import (
	"fmt"
	"time"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// VideoBridge owns a video encoder and its input surface,
// and forwards the encoder output to a Sink.
type VideoBridge struct {
	Encoder     codec.VideoEncoder
	Config      codec.Config
	Sink        Sink
	PollTimeout time.Duration
	DrainBudget int
	Parent      logger.Writer

	state          State
	encoderStarted bool
	surface        codec.Surface
	d              *drainer
	released       bool
}

// Log implements logger.Writer.
func (b *VideoBridge) Log(level logger.Level, format string, args ...any) {
	b.Parent.Log(level, "[video encoder] "+format, args...)
}

// Start configures and starts the encoder.
// Any error releases what was acquired.
func (b *VideoBridge) Start() error {
	if b.state != StateIdle {
		return fmt.Errorf("%w: start in state %v", ErrIllegalState, b.state)
	}

	if b.Config.Width <= 0 || b.Config.Height <= 0 ||
		(b.Config.Width%2) != 0 || (b.Config.Height%2) != 0 {
		return fmt.Errorf("%w: size %dx%d", ErrUnsupportedFormat, b.Config.Width, b.Config.Height)
	}

	if b.PollTimeout == 0 {
		b.PollTimeout = defaultPollTimeout
	}
	if b.DrainBudget == 0 {
		b.DrainBudget = defaultDrainBudget
	}

	err := b.Encoder.Configure(b.Config)
	if err != nil {
		b.Release()
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	b.surface, err = b.Encoder.CreateInputSurface()
	if err != nil {
		b.Release()
		return err
	}

	err = b.Encoder.Start()
	if err != nil {
		b.Release()
		return err
	}
	b.encoderStarted = true

	b.d = &drainer{
		track:          codec.KindVideo,
		enc:            b.Encoder,
		sink:           b.Sink,
		pollTimeout:    b.PollTimeout,
		budget:         b.DrainBudget,
		errFormatTwice: ErrFormatChangedTwice,
		parent:         b,
	}
	b.d.start()

	b.state = StateEncoding

	b.Log(logger.Debug, "started, %dx%d, %d bps, %d fps, keyframe every %ds",
		b.Config.Width, b.Config.Height, b.Config.Bitrate, b.Config.FrameRate, b.Config.KeyframeInterval)

	return nil
}

// State returns the bridge state.
func (b *VideoBridge) State() State {
	return b.state
}

// Surface returns the input surface of the encoder.
func (b *VideoBridge) Surface() codec.Surface {
	return b.surface
}

// SignalEndOfStream tells the encoder that no further frames will be submitted.
func (b *VideoBridge) SignalEndOfStream() error {
	if b.state != StateEncoding {
		return fmt.Errorf("%w: end of stream in state %v", ErrIllegalState, b.state)
	}

	err := b.Encoder.SignalEndOfInputStream()
	if err != nil {
		return err
	}

	b.state = StateDraining
	return nil
}

// Poll performs a single poll of the encoder output.
func (b *VideoBridge) Poll() (DrainResult, error) {
	if b.state != StateEncoding && b.state != StateDraining {
		return 0, fmt.Errorf("%w: poll in state %v", ErrIllegalState, b.state)
	}

	res, err := b.d.poll()
	if res == EndOfStream {
		b.state = StateStopped
	}
	return res, err
}

// Drain forwards the available encoder output to the sink.
// With endOfStream, it waits for the end-of-stream buffer, bounded by an iteration budget.
func (b *VideoBridge) Drain(endOfStream bool) error {
	switch b.state {
	case StateStopped:
		return nil

	case StateIdle:
		return fmt.Errorf("%w: drain in state %v", ErrIllegalState, b.state)
	}

	if endOfStream && b.state != StateDraining {
		return fmt.Errorf("%w: end of stream was not signaled", ErrIllegalState)
	}

	eos, err := b.d.drain(endOfStream)
	if eos {
		b.state = StateStopped
	}
	return err
}

// FormatSeen returns whether the encoder reported its output format.
func (b *VideoBridge) FormatSeen() bool {
	return b.d != nil && b.d.formatSeen
}

// Forwarded returns the number of packets forwarded to the sink.
func (b *VideoBridge) Forwarded() uint64 {
	if b.d == nil {
		return 0
	}
	return b.d.forwarded
}

// Suppressed returns the number of config buffers that were not forwarded.
func (b *VideoBridge) Suppressed() uint64 {
	if b.d == nil {
		return 0
	}
	return b.d.suppressed
}

// Release stops and releases the encoder and the input surface.
// It can be called multiple times.
func (b *VideoBridge) Release() {
	if b.released {
		return
	}
	b.released = true

	if b.d != nil {
		b.d.stop()
	}

	if b.encoderStarted {
		err := b.Encoder.Stop()
		if err != nil {
			b.Log(logger.Warn, "unable to stop encoder: %v", err)
		}
	}

	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}

	b.Encoder.Release()
	b.state = StateStopped
}

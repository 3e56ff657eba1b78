package encoder

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/counterdumper"
	"github.com/bluenviron/camrecorder/internal/errordumper"
	"github.com/bluenviron/camrecorder/internal/logger"
)

const (
	defaultChunkSize = 4096
)

// AudioBridge owns an audio encoder, pulls PCM from a capture source,
// feeds the encoder and forwards its output to a Sink.
type AudioBridge struct {
	Encoder     codec.AudioEncoder
	Config      codec.Config
	Source      io.Reader
	Sink        Sink
	Clock       func() time.Duration
	ChunkSize   int
	PollTimeout time.Duration
	DrainBudget int
	Parent      logger.Writer

	state          State
	encoderStarted bool
	d              *drainer
	released       bool
	recorderDone   atomic.Bool
	eosQueued      bool
	readBuf        []byte
	carry          int
	anchorSet      bool
	anchor         time.Duration
	samplesRead    int64
	dropped        *counterdumper.CounterDumper
	readErrors     *errordumper.Dumper
}

// Log implements logger.Writer.
func (b *AudioBridge) Log(level logger.Level, format string, args ...any) {
	b.Parent.Log(level, "[audio encoder] "+format, args...)
}

func (b *AudioBridge) frameSize() int {
	return 2 * b.Config.ChannelCount
}

// Start configures and starts the encoder.
// Any error releases what was acquired.
func (b *AudioBridge) Start() error {
	if b.state != StateIdle {
		return fmt.Errorf("%w: start in state %v", ErrIllegalState, b.state)
	}

	if b.Config.SampleRate <= 0 || b.Config.ChannelCount <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels",
			ErrUnsupportedFormat, b.Config.SampleRate, b.Config.ChannelCount)
	}

	if b.ChunkSize == 0 {
		b.ChunkSize = defaultChunkSize
	}
	if b.PollTimeout == 0 {
		b.PollTimeout = defaultPollTimeout
	}
	if b.DrainBudget == 0 {
		b.DrainBudget = defaultDrainBudget
	}
	if b.Clock == nil {
		start := time.Now()
		b.Clock = func() time.Duration { return time.Since(start) }
	}

	err := b.Encoder.Configure(b.Config)
	if err != nil {
		b.Release()
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	err = b.Encoder.Start()
	if err != nil {
		b.Release()
		return err
	}
	b.encoderStarted = true

	b.readBuf = make([]byte, b.ChunkSize)

	b.d = &drainer{
		track:          codec.KindAudio,
		enc:            b.Encoder,
		sink:           b.Sink,
		pollTimeout:    b.PollTimeout,
		budget:         b.DrainBudget,
		errFormatTwice: ErrIllegalState,
		parent:         b,
	}
	b.d.start()

	b.dropped = &counterdumper.CounterDumper{
		OnReport: func(v uint64) {
			b.Log(logger.Warn, "%d audio chunks dropped, encoder input queue is full", v)
		},
	}
	b.dropped.Start()

	b.readErrors = &errordumper.Dumper{
		OnReport: func(v uint64, last error) {
			b.Log(logger.Warn, "%d capture read errors, last: %v", v, last)
		},
	}
	b.readErrors.Start()

	b.state = StateEncoding

	b.Log(logger.Debug, "started, %d Hz, %d channels", b.Config.SampleRate, b.Config.ChannelCount)

	return nil
}

// State returns the bridge state.
func (b *AudioBridge) State() State {
	return b.state
}

// SetRecorderDone asks the bridge to submit the end-of-stream marker on the next feed.
// It can be called from any goroutine.
func (b *AudioBridge) SetRecorderDone() {
	b.recorderDone.Store(true)
}

func (b *AudioBridge) ptsOf(samples int64) int64 {
	return b.anchor.Microseconds() + samples*1000000/int64(b.Config.SampleRate)
}

// Feed reads one chunk of PCM and pushes it into the encoder.
// If no input buffer is available, the chunk is dropped.
func (b *AudioBridge) Feed() error {
	if b.state != StateEncoding {
		return nil
	}

	if b.recorderDone.Load() {
		return b.queueEndOfStream()
	}

	n, err := b.Source.Read(b.readBuf[b.carry:])
	if err != nil {
		b.readErrors.Add(err)
		return nil
	}

	n += b.carry
	whole := n - (n % b.frameSize())
	if whole == 0 {
		b.carry = n
		return nil
	}

	if !b.anchorSet {
		b.anchorSet = true
		b.anchor = b.Clock()
	}

	pts := b.ptsOf(b.samplesRead)
	b.samplesRead += int64(whole / b.frameSize())

	i := b.Encoder.DequeueInputBuffer(b.PollTimeout)
	if i >= 0 {
		buf := b.Encoder.InputBuffer(i)
		size := copy(buf, b.readBuf[:whole])

		err = b.Encoder.QueueInputBuffer(i, size, pts, 0)
		if err != nil {
			return err
		}
	} else {
		b.dropped.Increase()
	}

	b.carry = copy(b.readBuf, b.readBuf[whole:n])
	return nil
}

func (b *AudioBridge) queueEndOfStream() error {
	if b.eosQueued {
		return nil
	}

	i := b.Encoder.DequeueInputBuffer(b.PollTimeout)
	if i < 0 {
		// retried on next feed
		return nil
	}

	err := b.Encoder.QueueInputBuffer(i, 0, b.ptsOf(b.samplesRead), codec.FlagEndOfStream)
	if err != nil {
		return err
	}

	b.eosQueued = true
	b.state = StateDraining
	return nil
}

// Drain forwards the available encoder output to the sink.
// With endOfStream, it waits for the end-of-stream buffer, bounded by an iteration budget.
func (b *AudioBridge) Drain(endOfStream bool) error {
	switch b.state {
	case StateStopped:
		return nil

	case StateIdle:
		return fmt.Errorf("%w: drain in state %v", ErrIllegalState, b.state)
	}

	if endOfStream && !b.eosQueued {
		return fmt.Errorf("%w: end of stream was not queued", ErrIllegalState)
	}

	eos, err := b.d.drain(endOfStream)
	if eos {
		b.state = StateStopped
	}
	return err
}

// Finish submits the end-of-stream marker and drains the encoder until it is observed.
func (b *AudioBridge) Finish() error {
	if b.state == StateIdle || b.state == StateStopped {
		return nil
	}

	b.SetRecorderDone()

	for n := 0; !b.eosQueued; n++ {
		if n >= b.DrainBudget {
			return ErrDrainBudgetExceeded
		}

		err := b.queueEndOfStream()
		if err != nil {
			return err
		}

		if !b.eosQueued {
			// make room in the input queue, even if the sink is not started.
			_, err = b.d.poll()
			if err != nil {
				return err
			}
		}
	}

	return b.Drain(true)
}

// FormatSeen returns whether the encoder reported its output format.
func (b *AudioBridge) FormatSeen() bool {
	return b.d != nil && b.d.formatSeen
}

// Forwarded returns the number of packets forwarded to the sink.
func (b *AudioBridge) Forwarded() uint64 {
	if b.d == nil {
		return 0
	}
	return b.d.forwarded
}

// Dropped returns the number of PCM chunks dropped because the encoder was busy.
func (b *AudioBridge) Dropped() uint64 {
	if b.dropped == nil {
		return 0
	}
	return b.dropped.Total()
}

// Release stops and releases the encoder. It can be called multiple times.
func (b *AudioBridge) Release() {
	if b.released {
		return
	}
	b.released = true

	if b.readErrors != nil {
		b.readErrors.Stop()
	}
	if b.dropped != nil {
		b.dropped.Stop()
	}
	if b.d != nil {
		b.d.stop()
	}

	if b.encoderStarted {
		err := b.Encoder.Stop()
		if err != nil {
			b.Log(logger.Warn, "unable to stop encoder: %v", err)
		}
	}

	b.Encoder.Release()
	b.state = StateStopped
}

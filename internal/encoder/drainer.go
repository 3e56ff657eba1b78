package encoder

import (
	"fmt"
	"time"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/errordumper"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// drainer contains the output polling shared by the video and audio bridges.
type drainer struct {
	track          codec.Kind
	enc            codec.Encoder
	sink           Sink
	pollTimeout    time.Duration
	budget         int
	errFormatTwice error
	parent         logger.Writer

	formatSeen bool
	forwarded  uint64
	suppressed uint64
	anomalies  *errordumper.Dumper
}

func (d *drainer) start() {
	d.anomalies = &errordumper.Dumper{
		OnReport: func(v uint64, last error) {
			d.parent.Log(logger.Warn, "%d unexpected encoder statuses, last: %v", v, last)
		},
	}
	d.anomalies.Start()
}

func (d *drainer) stop() {
	if d.anomalies != nil {
		d.anomalies.Stop()
		d.anomalies = nil
	}
}

// poll dequeues at most one output of the encoder.
func (d *drainer) poll() (DrainResult, error) {
	var info codec.BufferInfo
	i := d.enc.DequeueOutputBuffer(&info, d.pollTimeout)

	switch {
	case i == codec.InfoTryAgainLater:
		return NoOutput, nil

	case i == codec.InfoOutputFormatChanged:
		if d.formatSeen {
			return 0, d.errFormatTwice
		}
		d.formatSeen = true

		f := d.enc.OutputFormat()
		d.parent.Log(logger.Debug, "output format is %s", f.MIME)

		err := d.sink.RegisterFormat(d.track, f)
		if err != nil {
			return 0, err
		}
		return FormatReady, nil

	case i == codec.InfoOutputBuffersChanged:
		return Ignored, nil

	case i < 0:
		d.anomalies.Add(fmt.Errorf("unexpected status %d", i))
		return Ignored, nil
	}

	defer d.enc.ReleaseOutputBuffer(i)

	if (info.Flags & codec.FlagCodecConfig) != 0 {
		// parameters were already delivered through the format.
		d.suppressed++
		info.Size = 0
	}

	if info.Size != 0 {
		buf := d.enc.OutputBuffer(i)
		if buf == nil || info.Offset+info.Size > len(buf) {
			d.anomalies.Add(fmt.Errorf("output buffer %d is out of range", i))
		} else {
			err := d.sink.WriteSample(d.track, &codec.EncodedPacket{
				Data:  buf[info.Offset : info.Offset+info.Size],
				PTS:   info.PTS,
				Flags: info.Flags &^ codec.FlagEndOfStream,
			})
			if err != nil {
				return 0, err
			}
			d.forwarded++
		}
	}

	if (info.Flags & codec.FlagEndOfStream) != 0 {
		return EndOfStream, nil
	}

	return PacketReady, nil
}

// drain polls the encoder until there's nothing left to do.
// Without endOfStream, once the format is known and the sink is not
// started yet, output is left inside the encoder.
func (d *drainer) drain(endOfStream bool) (bool, error) {
	for n := 0; n < d.budget; n++ {
		if !endOfStream && d.formatSeen && !d.sink.Started() {
			return false, nil
		}

		res, err := d.poll()
		if err != nil {
			return false, err
		}

		switch res {
		case NoOutput:
			if !endOfStream {
				return false, nil
			}

		case EndOfStream:
			return true, nil
		}
	}

	if endOfStream {
		return false, ErrDrainBudgetExceeded
	}
	return false, nil
}

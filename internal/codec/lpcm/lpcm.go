// Package lpcm contains an audio encoder that produces uncompressed 16-bit PCM.
package lpcm

import (
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// InputBufferSize is the size of each input buffer.
const InputBufferSize = 8192

func init() {
	codec.RegisterAudio("lpcm", func(parent logger.Writer) codec.AudioEncoder {
		return &Encoder{Parent: parent}
	})
}

// Encoder is an audio encoder that passes through little-endian 16-bit samples.
type Encoder struct {
	Parent logger.Writer

	codec.Engine
	configured bool
}

// Log implements logger.Writer.
func (e *Encoder) Log(level logger.Level, format string, args ...any) {
	if e.Parent != nil {
		e.Parent.Log(level, "[lpcm] "+format, args...)
	}
}

// Configure implements codec.Encoder.
func (e *Encoder) Configure(conf codec.Config) error {
	if conf.SampleRate <= 0 {
		return fmt.Errorf("unsupported sample rate: %d", conf.SampleRate)
	}
	if conf.ChannelCount != 1 && conf.ChannelCount != 2 {
		return fmt.Errorf("unsupported channel count: %d", conf.ChannelCount)
	}

	e.Engine = codec.Engine{
		InputBufferCount:  4,
		InputBufferSize:   InputBufferSize,
		OutputBufferCount: 16,
		Processor: &processor{
			format: &codec.Format{
				Kind:         codec.KindAudio,
				MIME:         codec.MIMELPCM,
				SampleRate:   conf.SampleRate,
				ChannelCount: conf.ChannelCount,
				Codec: &mp4.CodecLPCM{
					LittleEndian: true,
					BitDepth:     16,
					SampleRate:   conf.SampleRate,
					ChannelCount: conf.ChannelCount,
				},
			},
		},
		Parent: e,
	}
	e.Engine.Initialize()
	e.configured = true

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
	format     *codec.Format
	formatSent bool
}

func (p *processor) Process(job *codec.Job, out codec.Emitter) error {
	if !p.formatSent {
		p.formatSent = true
		out.EmitFormat(p.format)
	}

	// a partial sample is discarded
	n := len(job.Data) - (len(job.Data) % (2 * p.format.ChannelCount))
	if n == 0 {
		return nil
	}

	out.EmitBuffer(job.Data[:n], job.PTS, codec.FlagKeyFrame)
	return nil
}

func (p *processor) Flush(_ codec.Emitter) error {
	return nil
}

func (p *processor) Close() {
}

// Package x264 contains a H264 video encoder based on x264.
package x264

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/gen2brain/x264-go"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/logger"
)

func init() {
	codec.RegisterVideo("x264", func(parent logger.Writer) codec.VideoEncoder {
		return &Encoder{Parent: parent}
	})
}

// Encoder is a H264 video encoder based on x264.
type Encoder struct {
	Parent logger.Writer

	codec.Engine
	conf       codec.Config
	configured bool
}

// Log implements logger.Writer.
func (e *Encoder) Log(level logger.Level, format string, args ...any) {
	if e.Parent != nil {
		e.Parent.Log(level, "[x264] "+format, args...)
	}
}

// Configure implements codec.Encoder.
func (e *Encoder) Configure(conf codec.Config) error {
	if conf.Width <= 0 || conf.Height <= 0 || (conf.Width%2) != 0 || (conf.Height%2) != 0 {
		return fmt.Errorf("unsupported size: %dx%d", conf.Width, conf.Height)
	}
	if conf.FrameRate <= 0 {
		return fmt.Errorf("unsupported frame rate: %d", conf.FrameRate)
	}

	e.conf = conf

	p := &processor{
		width:  conf.Width,
		height: conf.Height,
	}

	var err error
	p.enc, err = x264.NewEncoder(&p.buf, &x264.Options{
		Width:     conf.Width,
		Height:    conf.Height,
		FrameRate: conf.FrameRate,
		Tune:      "zerolatency",
		Preset:    "veryfast",
		Profile:   "baseline",
	})
	if err != nil {
		return err
	}

	e.Engine = codec.Engine{
		InputBufferCount:  3,
		InputBufferSize:   conf.Width * conf.Height * 4,
		OutputBufferCount: 8,
		Processor:         p,
		Parent:            e,
	}
	e.Engine.Initialize()
	e.configured = true

	// the bitrate of x264-go is controlled by the preset.
	e.Log(logger.Debug, "configured %dx%d@%d, requested bitrate %d",
		conf.Width, conf.Height, conf.FrameRate, conf.Bitrate)

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

// CreateInputSurface implements codec.VideoEncoder.
func (e *Encoder) CreateInputSurface() (codec.Surface, error) {
	if !e.configured {
		return nil, codec.ErrNotConfigured
	}
	return codec.NewImageSurface(&e.Engine, e.conf.Width, e.conf.Height), nil
}

type processor struct {
	width  int
	height int
	enc    *x264.Encoder
	buf    bytes.Buffer

	sps        []byte
	pps        []byte
	formatSent bool
	lastPTS    int64
}

func (p *processor) Process(job *codec.Job, out codec.Emitter) error {
	p.lastPTS = job.PTS

	err := p.enc.Encode(codec.RGBAFromBuffer(job.Data, p.width, p.height))
	if err != nil {
		return err
	}
	return p.emit(job.PTS, out)
}

func (p *processor) Flush(out codec.Emitter) error {
	err := p.enc.Flush()
	if err != nil {
		return err
	}
	return p.emit(p.lastPTS, out)
}

func (p *processor) Close() {
	p.enc.Close() //nolint:errcheck
}

// emit splits what x264 wrote into parameter sets and an access unit.
func (p *processor) emit(pts int64, out codec.Emitter) error {
	if p.buf.Len() == 0 {
		return nil
	}

	var nalus h264.AnnexB
	err := nalus.Unmarshal(p.buf.Bytes())
	p.buf.Reset()
	if err != nil {
		return err
	}

	var au [][]byte

	for _, nalu := range nalus {
		typ := h264.NALUType(nalu[0] & 0x1F)

		switch typ {
		case h264.NALUTypeSPS:
			p.sps = nalu

		case h264.NALUTypePPS:
			p.pps = nalu

		case h264.NALUTypeAccessUnitDelimiter:

		default:
			au = append(au, nalu)
		}
	}

	if !p.formatSent && p.sps != nil && p.pps != nil {
		err = p.emitFormat(pts, out)
		if err != nil {
			return err
		}
	}

	if len(au) == 0 {
		return nil
	}

	var flags codec.BufferFlag
	if h264.IsRandomAccess(au) {
		flags |= codec.FlagKeyFrame
	}

	buf, err := h264.AnnexB(au).Marshal()
	if err != nil {
		return err
	}

	out.EmitBuffer(buf, pts, flags)
	return nil
}

func (p *processor) emitFormat(pts int64, out codec.Emitter) error {
	var sps h264.SPS
	err := sps.Unmarshal(p.sps)
	if err != nil {
		return fmt.Errorf("unable to parse SPS: %w", err)
	}

	p.formatSent = true

	out.EmitFormat(&codec.Format{
		Kind:   codec.KindVideo,
		MIME:   codec.MIMEH264,
		Width:  sps.Width(),
		Height: sps.Height(),
		Codec: &mp4.CodecH264{
			SPS: p.sps,
			PPS: p.pps,
		},
	})

	config, err := h264.AnnexB([][]byte{p.sps, p.pps}).Marshal()
	if err != nil {
		return err
	}

	out.EmitBuffer(config, pts, codec.FlagCodecConfig)
	return nil
}

package encoder

import (
	"image"
	"image/draw"
	"time"

	"github.com/bluenviron/camrecorder/internal/codec"
)

type fakeOutput struct {
	status int
	data   []byte
	pts    int64
	flags  codec.BufferFlag
}

type fakeInput struct {
	data  []byte
	pts   int64
	flags codec.BufferFlag
}

type fakeSurface struct {
	released bool
}

func (s *fakeSurface) Image() draw.Image {
	return image.NewRGBA(image.Rect(0, 0, 2, 2))
}

func (s *fakeSurface) SetPresentationTime(_ time.Duration) {
}

func (s *fakeSurface) SwapBuffers() error {
	return nil
}

func (s *fakeSurface) Release() {
	s.released = true
}

type fakeEncoder struct {
	outputs      []fakeOutput
	format       *codec.Format
	configureErr error

	configured  bool
	started     bool
	stopped     bool
	released    int
	eosSignaled bool
	surface     *fakeSurface

	held       map[int][]byte
	nextIndex  int
	freeInputs int
	inputBuf   []byte
	inputs     []fakeInput
}

func (e *fakeEncoder) Configure(_ codec.Config) error {
	if e.configureErr != nil {
		return e.configureErr
	}
	e.configured = true
	e.held = make(map[int][]byte)
	e.inputBuf = make([]byte, 64)
	return nil
}

func (e *fakeEncoder) Start() error {
	e.started = true
	return nil
}

func (e *fakeEncoder) Stop() error {
	e.stopped = true
	return nil
}

func (e *fakeEncoder) Release() {
	e.released++
}

func (e *fakeEncoder) OutputFormat() *codec.Format {
	return e.format
}

func (e *fakeEncoder) DequeueOutputBuffer(info *codec.BufferInfo, _ time.Duration) int {
	if len(e.outputs) == 0 {
		return codec.InfoTryAgainLater
	}

	out := e.outputs[0]
	e.outputs = e.outputs[1:]

	if out.status < 0 {
		return out.status
	}

	i := e.nextIndex
	e.nextIndex++
	e.held[i] = out.data

	*info = codec.BufferInfo{
		Size:  len(out.data),
		PTS:   out.pts,
		Flags: out.flags,
	}
	return i
}

func (e *fakeEncoder) OutputBuffer(index int) []byte {
	return e.held[index]
}

func (e *fakeEncoder) ReleaseOutputBuffer(index int) {
	delete(e.held, index)
}

func (e *fakeEncoder) CreateInputSurface() (codec.Surface, error) {
	e.surface = &fakeSurface{}
	return e.surface, nil
}

func (e *fakeEncoder) SignalEndOfInputStream() error {
	e.eosSignaled = true
	return nil
}

func (e *fakeEncoder) DequeueInputBuffer(_ time.Duration) int {
	if e.freeInputs == 0 {
		return codec.InfoTryAgainLater
	}
	e.freeInputs--
	return 0
}

func (e *fakeEncoder) InputBuffer(_ int) []byte {
	return e.inputBuf
}

func (e *fakeEncoder) QueueInputBuffer(_ int, size int, pts int64, flags codec.BufferFlag) error {
	e.inputs = append(e.inputs, fakeInput{
		data:  append([]byte(nil), e.inputBuf[:size]...),
		pts:   pts,
		flags: flags,
	})
	return nil
}

type sample struct {
	track codec.Kind
	data  []byte
	pts   int64
	flags codec.BufferFlag
}

type fakeSink struct {
	started bool
	formats map[codec.Kind]*codec.Format
	samples []sample
}

func (s *fakeSink) RegisterFormat(track codec.Kind, format *codec.Format) error {
	if s.formats == nil {
		s.formats = make(map[codec.Kind]*codec.Format)
	}
	s.formats[track] = format
	return nil
}

func (s *fakeSink) WriteSample(track codec.Kind, pkt *codec.EncodedPacket) error {
	s.samples = append(s.samples, sample{
		track: track,
		data:  append([]byte(nil), pkt.Data...),
		pts:   pkt.PTS,
		flags: pkt.Flags,
	})
	return nil
}

func (s *fakeSink) Started() bool {
	return s.started
}

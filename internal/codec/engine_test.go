package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type upperProcessor struct {
	formatSent bool
	flushed    bool
	closed     bool
}

func (p *upperProcessor) Process(job *Job, out Emitter) error {
	if !p.formatSent {
		p.formatSent = true
		out.EmitFormat(&Format{Kind: KindAudio, MIME: MIMELPCM, SampleRate: 8000, ChannelCount: 1})
		out.EmitBuffer([]byte{1, 2}, job.PTS, FlagCodecConfig)
	}
	out.EmitBuffer(bytes.ToUpper(job.Data), job.PTS, FlagKeyFrame)
	return nil
}

func (p *upperProcessor) Flush(_ Emitter) error {
	p.flushed = true
	return nil
}

func (p *upperProcessor) Close() {
	p.closed = true
}

func newTestEngine(p Processor, outputs int) *Engine {
	e := &Engine{
		InputBufferCount:  2,
		InputBufferSize:   16,
		OutputBufferCount: outputs,
		Processor:         p,
	}
	e.Initialize()
	return e
}

func queueString(t *testing.T, e *Engine, s string, pts int64) {
	i := e.DequeueInputBuffer(time.Second)
	require.GreaterOrEqual(t, i, 0)
	n := copy(e.InputBuffer(i), s)
	err := e.QueueInputBuffer(i, n, pts, 0)
	require.NoError(t, err)
}

func TestEngine(t *testing.T) {
	p := &upperProcessor{}
	e := newTestEngine(p, 8)

	err := e.Start()
	require.NoError(t, err)

	queueString(t, e, "abc", 1000)
	queueString(t, e, "def", 2000)

	var info BufferInfo

	i := e.DequeueOutputBuffer(&info, time.Second)
	require.Equal(t, InfoOutputFormatChanged, i)
	require.Equal(t, MIMELPCM, e.OutputFormat().MIME)

	i = e.DequeueOutputBuffer(&info, time.Second)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, FlagCodecConfig, info.Flags)
	e.ReleaseOutputBuffer(i)

	i = e.DequeueOutputBuffer(&info, time.Second)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, BufferInfo{Size: 3, PTS: 1000, Flags: FlagKeyFrame}, info)
	require.Equal(t, []byte("ABC"), e.OutputBuffer(i))
	e.ReleaseOutputBuffer(i)
	require.Nil(t, e.OutputBuffer(i))

	i = e.DequeueOutputBuffer(&info, time.Second)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, []byte("DEF"), e.OutputBuffer(i))
	e.ReleaseOutputBuffer(i)

	i = e.DequeueOutputBuffer(&info, 10*time.Millisecond)
	require.Equal(t, InfoTryAgainLater, i)

	err = e.SignalEndOfInputStream()
	require.NoError(t, err)

	i = e.DequeueOutputBuffer(&info, time.Second)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, FlagEndOfStream, info.Flags)
	require.Equal(t, int64(2000), info.PTS)
	require.True(t, p.flushed)

	e.Release()
	e.Release()
	require.True(t, p.closed)
}

func TestEngineBackpressure(t *testing.T) {
	e := newTestEngine(&upperProcessor{}, 1)

	err := e.Start()
	require.NoError(t, err)
	defer e.Release()

	// the output queue holds a single event, so the routine stalls
	// and input buffers are exhausted.
	exhausted := false
	for n := 0; n < 10; n++ {
		i := e.DequeueInputBuffer(50 * time.Millisecond)
		if i < 0 {
			exhausted = true
			break
		}
		err = e.QueueInputBuffer(i, 1, int64(n), 0)
		require.NoError(t, err)
	}
	require.True(t, exhausted)

	// draining the output frees the inputs again.
	var info BufferInfo
	for n := 0; n < 3; n++ {
		i := e.DequeueOutputBuffer(&info, time.Second)
		if i >= 0 {
			e.ReleaseOutputBuffer(i)
		}
	}

	require.GreaterOrEqual(t, e.DequeueInputBuffer(time.Second), 0)
}

func TestEngineNotStarted(t *testing.T) {
	e := newTestEngine(&upperProcessor{}, 1)

	var info BufferInfo
	require.Equal(t, InfoTryAgainLater, e.DequeueOutputBuffer(&info, 0))
	require.Equal(t, InfoTryAgainLater, e.DequeueInputBuffer(0))
	require.ErrorIs(t, e.QueueInputBuffer(0, 1, 0, 0), ErrNotStarted)
	require.ErrorIs(t, e.SignalEndOfInputStream(), ErrNotStarted)
}

func TestImageSurface(t *testing.T) {
	e := &Engine{
		InputBufferCount: 1,
		InputBufferSize:  2 * 2 * 4,
		Processor:        &upperProcessor{},
	}
	e.Initialize()

	err := e.Start()
	require.NoError(t, err)
	defer e.Release()

	s := NewImageSurface(e, 2, 2)
	defer s.Release()

	require.Equal(t, 2, s.Image().Bounds().Dx())

	s.SetPresentationTime(40 * time.Millisecond)
	err = s.SwapBuffers()
	require.NoError(t, err)

	var info BufferInfo
	require.Equal(t, InfoOutputFormatChanged, e.DequeueOutputBuffer(&info, time.Second))
	i := e.DequeueOutputBuffer(&info, time.Second)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, int64(40000), info.PTS)
}

func TestRegistry(t *testing.T) {
	_, err := NewVideoEncoder("nonexisting", nil)
	require.ErrorIs(t, err, ErrUnknownEncoder)

	_, err = NewAudioEncoder("nonexisting", nil)
	require.EqualError(t, err, "unknown encoder: audio encoder 'nonexisting'")
}

package aac

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/test"
)

func TestEncoderConfigureErrors(t *testing.T) {
	e := &Encoder{}

	err := e.Configure(codec.Config{SampleRate: 44100, ChannelCount: 3})
	require.EqualError(t, err, "unsupported channel count: 3")

	err = e.Configure(codec.Config{SampleRate: 0, ChannelCount: 1})
	require.EqualError(t, err, "unsupported sample rate: 0")

	require.Equal(t, codec.InfoTryAgainLater, e.DequeueInputBuffer(0))
	require.ErrorIs(t, e.Start(), codec.ErrNotConfigured)
}

func TestPlanarFloats(t *testing.T) {
	in := []byte{
		0x00, 0x40, // L 16384
		0x00, 0xC0, // R -16384
		0x00, 0x00, // L 0
		0xFF, 0x7F, // R 32767
	}

	out := planarFloats(in, 2)
	require.Len(t, out, 16)

	v := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}

	require.Equal(t, float32(0.5), v(0))
	require.Equal(t, float32(0), v(1))
	require.Equal(t, float32(-0.5), v(2))
	require.InDelta(t, 1, v(3), 0.001)
}

func TestEncoder(t *testing.T) {
	enc, err := codec.NewAudioEncoder("aac", nil)
	require.NoError(t, err)
	defer enc.Release()

	err = enc.Configure(codec.Config{SampleRate: 44100, ChannelCount: 1, Bitrate: 128000})
	require.NoError(t, err)

	err = enc.Start()
	require.NoError(t, err)

	// 440 Hz, 3 input buffers of 2048 samples each
	for b := 0; b < 3; b++ {
		i := enc.DequeueInputBuffer(time.Second)
		require.GreaterOrEqual(t, i, 0)

		buf := enc.InputBuffer(i)
		for s := 0; s < 2048; s++ {
			n := b*2048 + s
			v := int16(10000 * math.Sin(2*math.Pi*440*float64(n)/44100))
			binary.LittleEndian.PutUint16(buf[s*2:], uint16(v))
		}

		err = enc.QueueInputBuffer(i, 4096, 1000+int64(b)*46440, 0)
		require.NoError(t, err)
	}

	i := enc.DequeueInputBuffer(time.Second)
	require.GreaterOrEqual(t, i, 0)
	err = enc.QueueInputBuffer(i, 0, 1000+3*46440, codec.FlagEndOfStream)
	require.NoError(t, err)

	var info codec.BufferInfo

	require.Equal(t, codec.InfoOutputFormatChanged, enc.DequeueOutputBuffer(&info, 2*time.Second))
	require.Equal(t, test.FormatMPEG4Audio.Codec, enc.OutputFormat().Codec)
	require.Equal(t, codec.MIMEMPEG4Audio, enc.OutputFormat().MIME)

	i = enc.DequeueOutputBuffer(&info, 2*time.Second)
	require.GreaterOrEqual(t, i, 0)
	require.Equal(t, codec.FlagCodecConfig, info.Flags)
	require.Equal(t, []byte{0x12, 0x08}, enc.OutputBuffer(i)[:2])
	enc.ReleaseOutputBuffer(i)

	var pts []int64

	for {
		i = enc.DequeueOutputBuffer(&info, 2*time.Second)
		require.GreaterOrEqual(t, i, 0)

		if (info.Flags & codec.FlagEndOfStream) != 0 {
			break
		}

		require.Equal(t, codec.FlagKeyFrame, info.Flags)
		require.NotZero(t, info.Size)
		pts = append(pts, info.PTS)
		enc.ReleaseOutputBuffer(i)
	}

	// 6144 samples are 6 full frames, plus the encoder delay flushed at the end.
	require.GreaterOrEqual(t, len(pts), 6)
	require.Equal(t, int64(1000), pts[0])
	require.Equal(t, int64(1000+23219), pts[1])
	for j := 1; j < len(pts); j++ {
		require.Greater(t, pts[j], pts[j-1])
	}
}

package x264

import (
	"image/color"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/codec"
)

func TestEncoderConfigureErrors(t *testing.T) {
	e := &Encoder{}

	err := e.Configure(codec.Config{Width: 641, Height: 480, FrameRate: 30})
	require.EqualError(t, err, "unsupported size: 641x480")

	err = e.Start()
	require.ErrorIs(t, err, codec.ErrNotConfigured)

	e.Release()
}

func TestEncoder(t *testing.T) {
	enc, err := codec.NewVideoEncoder("x264", nil)
	require.NoError(t, err)
	defer enc.Release()

	err = enc.Configure(codec.Config{
		Width:            64,
		Height:           48,
		Bitrate:          500000,
		FrameRate:        30,
		KeyframeInterval: 1,
	})
	require.NoError(t, err)

	surf, err := enc.CreateInputSurface()
	require.NoError(t, err)
	defer surf.Release()

	err = enc.Start()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		img := surf.Image()
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), uint8(i * 60), 255})
			}
		}

		surf.SetPresentationTime(time.Duration(i) * 33 * time.Millisecond)

		require.Eventually(t, func() bool {
			return surf.SwapBuffers() == nil
		}, 2*time.Second, 5*time.Millisecond)
	}

	err = enc.SignalEndOfInputStream()
	require.NoError(t, err)

	var info codec.BufferInfo
	formatChanged := 0
	configs := 0
	var frames [][]byte
	var firstFlags codec.BufferFlag

outer:
	for {
		i := enc.DequeueOutputBuffer(&info, 2*time.Second)
		switch {
		case i == codec.InfoOutputFormatChanged:
			formatChanged++

		case i >= 0:
			buf := enc.OutputBuffer(i)
			switch {
			case (info.Flags & codec.FlagEndOfStream) != 0:
				enc.ReleaseOutputBuffer(i)
				break outer

			case (info.Flags & codec.FlagCodecConfig) != 0:
				configs++

			default:
				if len(frames) == 0 {
					firstFlags = info.Flags
				}
				frames = append(frames, buf)
			}
			enc.ReleaseOutputBuffer(i)

		default:
			t.Fatalf("unexpected status %d", i)
		}
	}

	require.Equal(t, 1, formatChanged)
	require.Equal(t, 1, configs)
	require.Len(t, frames, 3)
	require.Equal(t, codec.FlagKeyFrame, firstFlags)

	f := enc.OutputFormat()
	require.Equal(t, codec.MIMEH264, f.MIME)
	require.Equal(t, 64, f.Width)
	require.Equal(t, 48, f.Height)

	var au h264.AnnexB
	err = au.Unmarshal(frames[0])
	require.NoError(t, err)
	require.True(t, h264.IsRandomAccess(au))
}

package capture

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/framesync"
	"github.com/bluenviron/camrecorder/internal/test"
)

func TestCameraSource(t *testing.T) {
	fs := &framesync.Sync{Parent: test.NilLogger}
	fs.Initialize()

	s := &CameraSource{
		Width:  70,
		Height: 10,
		FPS:    100,
		Sync:   fs,
		Parent: test.NilLogger,
	}
	s.Initialize()
	defer s.Close()

	err := fs.AwaitFrame()
	require.NoError(t, err)
	require.NotZero(t, s.Frames())

	s.View(func(img *image.RGBA) {
		require.Equal(t, image.Rect(0, 0, 70, 10), img.Bounds())
		require.Equal(t, color.RGBA{0x00, 0x00, 0xc0, 0xff}, img.RGBAAt(65, 5))
	})
}

func TestDrawPattern(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 70, 2))

	drawPattern(img, 3)
	require.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, img.RGBAAt(3, 0))
	require.Equal(t, color.RGBA{0xc0, 0xc0, 0xc0, 0xff}, img.RGBAAt(4, 0))
	require.Equal(t, color.RGBA{0xc0, 0xc0, 0x00, 0xff}, img.RGBAAt(10, 1))

	drawPattern(img, 73)
	require.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, img.RGBAAt(3, 0))
}

package codec

import (
	"image"
	"image/draw"
	"time"
)

// ImageSurface is a Surface backed by an RGBA image.
// On each swap, pixels are copied into a free input buffer of the engine.
type ImageSurface struct {
	img    *image.RGBA
	pts    time.Duration
	engine *Engine
}

// NewImageSurface allocates an ImageSurface.
// The engine input buffers must be at least width*height*4 bytes.
func NewImageSurface(engine *Engine, width int, height int) *ImageSurface {
	return &ImageSurface{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		engine: engine,
	}
}

// Image implements Surface.
func (s *ImageSurface) Image() draw.Image {
	return s.img
}

// SetPresentationTime implements Surface.
func (s *ImageSurface) SetPresentationTime(pts time.Duration) {
	s.pts = pts
}

// SwapBuffers implements Surface.
// It never blocks: when the engine has no free input buffer the frame is
// not submitted and ErrSurfaceBusy is returned.
func (s *ImageSurface) SwapBuffers() error {
	i := s.engine.DequeueInputBuffer(0)
	if i < 0 {
		return ErrSurfaceBusy
	}

	n := copy(s.engine.InputBuffer(i), s.img.Pix)

	return s.engine.QueueInputBuffer(i, n, s.pts.Microseconds(), 0)
}

// Release implements Surface.
func (s *ImageSurface) Release() {
	s.img = nil
}

// RGBAFromBuffer wraps a buffer filled by ImageSurface into an image.
func RGBAFromBuffer(buf []byte, width int, height int) *image.RGBA {
	return &image.RGBA{
		Pix:    buf,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
}

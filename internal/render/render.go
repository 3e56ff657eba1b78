// Package render contains the render step that draws camera frames
// on the display and on the encoder input surface.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"slices"
	"sync"
)

// filters.
const (
	FilterNone      = "none"
	FilterGrayscale = "grayscale"
	FilterInvert    = "invert"
)

// Filters returns the available filters.
func Filters() []string {
	return []string{FilterNone, FilterGrayscale, FilterInvert}
}

// Letterbox returns the region of a video frame that preserves the aspect ratio of the window.
func Letterbox(windowWidth, windowHeight, videoWidth, videoHeight int) image.Rectangle {
	if windowWidth <= 0 || windowHeight <= 0 {
		return image.Rect(0, 0, videoWidth, videoHeight)
	}

	windowAspect := float64(windowHeight) / float64(windowWidth)

	var outWidth, outHeight int
	if float64(videoHeight) > float64(videoWidth)*windowAspect {
		// limited by narrow width, reduce height
		outWidth = videoWidth
		outHeight = int(float64(videoWidth) * windowAspect)
	} else {
		// limited by short height, restrict width
		outHeight = videoHeight
		outWidth = int(float64(videoHeight) / windowAspect)
	}

	offX := (videoWidth - outWidth) / 2
	offY := (videoHeight - outHeight) / 2
	return image.Rect(offX, offY, offX+outWidth, offY+outHeight)
}

// FrameSource provides the newest camera frame.
type FrameSource interface {
	View(cb func(img *image.RGBA))
}

// Renderer draws the scene.
type Renderer interface {
	// Draw renders the newest frame into the viewport of dst.
	Draw(dst draw.Image, viewport image.Rectangle)
	// RenderOffscreen renders the newest frame into an offscreen buffer.
	RenderOffscreen()
	// Blit copies the offscreen buffer into the viewport of dst.
	Blit(dst draw.Image, viewport image.Rectangle)
	SetFilter(name string) error
	SetSize(width int, height int)
}

// Software is a Renderer that runs on the CPU.
type Software struct {
	Source FrameSource
	Filter string

	mutex     sync.Mutex
	filter    string
	offscreen *image.RGBA
}

// Initialize initializes Software.
func (r *Software) Initialize() error {
	if r.Filter == "" {
		r.Filter = FilterNone
	}
	return r.SetFilter(r.Filter)
}

// SetFilter implements Renderer.
func (r *Software) SetFilter(name string) error {
	if !slices.Contains(Filters(), name) {
		return fmt.Errorf("unknown filter: '%s'", name)
	}

	r.mutex.Lock()
	r.filter = name
	r.mutex.Unlock()
	return nil
}

// SetSize implements Renderer.
// The offscreen buffer follows the size of the window.
func (r *Software) SetSize(width int, height int) {
	r.offscreen = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (r *Software) currentFilter() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.filter
}

// Draw implements Renderer.
func (r *Software) Draw(dst draw.Image, viewport image.Rectangle) {
	filter := r.currentFilter()

	r.Source.View(func(img *image.RGBA) {
		scale(dst, viewport, img, filter)
	})
}

// RenderOffscreen implements Renderer.
func (r *Software) RenderOffscreen() {
	if r.offscreen == nil {
		return
	}
	r.Draw(r.offscreen, r.offscreen.Bounds())
}

// Blit implements Renderer.
func (r *Software) Blit(dst draw.Image, viewport image.Rectangle) {
	if r.offscreen == nil {
		return
	}
	scale(dst, viewport, r.offscreen, FilterNone)
}

// Clear fills dst with black.
func Clear(dst draw.Image) {
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
}

func applyFilter(c color.RGBA, filter string) color.RGBA {
	switch filter {
	case FilterGrayscale:
		y := uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000)
		return color.RGBA{y, y, y, c.A}

	case FilterInvert:
		return color.RGBA{255 - c.R, 255 - c.G, 255 - c.B, c.A}
	}
	return c
}

// scale copies src into the viewport of dst with nearest-neighbor sampling.
func scale(dst draw.Image, viewport image.Rectangle, src *image.RGBA, filter string) {
	viewport = viewport.Intersect(dst.Bounds())
	sb := src.Bounds()
	if viewport.Empty() || sb.Empty() {
		return
	}

	vw, vh := viewport.Dx(), viewport.Dy()
	sw, sh := sb.Dx(), sb.Dy()

	rgba, isRGBA := dst.(*image.RGBA)

	for y := 0; y < vh; y++ {
		sy := sb.Min.Y + y*sh/vh

		for x := 0; x < vw; x++ {
			sx := sb.Min.X + x*sw/vw
			c := applyFilter(src.RGBAAt(sx, sy), filter)

			if isRGBA {
				rgba.SetRGBA(viewport.Min.X+x, viewport.Min.Y+y, c)
			} else {
				dst.Set(viewport.Min.X+x, viewport.Min.Y+y, c)
			}
		}
	}
}

package render

import (
	"image"
	"image/draw"
	"sync"
)

// Display is a double-buffered window surface.
// The scheduler draws into the back buffer and swaps it;
// other goroutines can read the front buffer with Snapshot.
type Display struct {
	Width  int
	Height int

	back *image.RGBA

	mutex sync.RWMutex
	front *image.RGBA
	swaps uint64
}

// Initialize initializes Display.
func (d *Display) Initialize() {
	d.Resize(d.Width, d.Height)
}

// Resize changes the size of both buffers.
func (d *Display) Resize(width int, height int) {
	d.Width = width
	d.Height = height
	d.back = image.NewRGBA(image.Rect(0, 0, width, height))

	d.mutex.Lock()
	d.front = image.NewRGBA(image.Rect(0, 0, width, height))
	d.mutex.Unlock()
}

// Image returns the back buffer.
func (d *Display) Image() draw.Image {
	return d.back
}

// SwapBuffers presents the back buffer.
func (d *Display) SwapBuffers() {
	d.mutex.Lock()
	d.back, d.front = d.front, d.back
	d.swaps++
	d.mutex.Unlock()
}

// Swaps returns the number of presented frames.
func (d *Display) Swaps() uint64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.swaps
}

// Snapshot returns a copy of the last presented frame.
func (d *Display) Snapshot() *image.RGBA {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	out := image.NewRGBA(d.front.Bounds())
	copy(out.Pix, d.front.Pix)
	return out
}

package capture

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/bluenviron/camrecorder/internal/framesync"
	"github.com/bluenviron/camrecorder/internal/logger"
)

var colorBars = []color.RGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
}

// CameraSource is a synthetic camera.
// It produces a test pattern at a fixed rate and signals every new frame.
type CameraSource struct {
	Width  int
	Height int
	FPS    float64
	Sync   *framesync.Sync
	Parent logger.Writer

	mutex  sync.RWMutex
	front  *image.RGBA
	back   *image.RGBA
	frames uint64

	terminate chan struct{}
	done      chan struct{}
}

// Initialize initializes CameraSource and starts producing frames.
func (s *CameraSource) Initialize() {
	r := image.Rect(0, 0, s.Width, s.Height)
	s.front = image.NewRGBA(r)
	s.back = image.NewRGBA(r)

	s.terminate = make(chan struct{})
	s.done = make(chan struct{})

	s.Log(logger.Debug, "producing %dx%d at %.2f FPS", s.Width, s.Height, s.FPS)

	go s.run()
}

// Log implements logger.Writer.
func (s *CameraSource) Log(level logger.Level, format string, args ...any) {
	s.Parent.Log(level, "[camera] "+format, args...)
}

// Close stops the camera.
func (s *CameraSource) Close() {
	close(s.terminate)
	<-s.done
}

func (s *CameraSource) run() {
	defer close(s.done)

	t := time.NewTicker(time.Duration(float64(time.Second) / s.FPS))
	defer t.Stop()

	for {
		select {
		case <-t.C:
			s.produce()

		case <-s.terminate:
			return
		}
	}
}

func (s *CameraSource) produce() {
	drawPattern(s.back, s.frames)

	s.mutex.Lock()
	s.front, s.back = s.back, s.front
	s.frames++
	s.mutex.Unlock()

	if s.Sync != nil {
		s.Sync.Signal()
	}
}

// View calls cb with the newest frame. The frame must not be retained after cb returns.
func (s *CameraSource) View(cb func(img *image.RGBA)) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	cb(s.front)
}

// Frames returns the number of produced frames.
func (s *CameraSource) Frames() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.frames
}

// drawPattern draws color bars with a white line that moves at every frame.
func drawPattern(img *image.RGBA, n uint64) {
	b := img.Bounds()
	w := b.Dx()

	for i, c := range colorBars {
		x0 := b.Min.X + i*w/len(colorBars)
		x1 := b.Min.X + (i+1)*w/len(colorBars)
		draw.Draw(img, image.Rect(x0, b.Min.Y, x1, b.Max.Y), &image.Uniform{c}, image.Point{}, draw.Src)
	}

	if w != 0 {
		x := b.Min.X + int(n%uint64(w))
		draw.Draw(img, image.Rect(x, b.Min.Y, x+1, b.Max.Y), image.White, image.Point{}, draw.Src)
	}
}

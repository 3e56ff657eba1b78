package scheduler

import (
	"time"
)

// number of rendered ticks between two FPS reports.
const fpsWindow = 120

// fpsCounter measures the rendering frame rate over a fixed number of ticks.
type fpsCounter struct {
	start  time.Time
	frames int
}

func (c *fpsCounter) reset() {
	c.start = time.Time{}
	c.frames = 0
}

// update returns thousands of frames per second once a window is complete.
func (c *fpsCounter) update(ts time.Time) (int64, bool) {
	if c.start.IsZero() {
		c.start = ts
		c.frames = 0
		return 0, false
	}

	c.frames++
	if c.frames < fpsWindow {
		return 0, false
	}

	elapsed := ts.Sub(c.start)
	c.start = ts
	c.frames = 0

	if elapsed <= 0 {
		return 0, false
	}

	return fpsWindow * int64(1e12) / int64(elapsed), true
}

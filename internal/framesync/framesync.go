// Package framesync contains a primitive that hands frame-available
// notifications from a producer to a single consumer.
package framesync

import (
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/camrecorder/internal/logger"
)

// DefaultTimeout is the default maximum time to wait for a frame.
const DefaultTimeout = 2500 * time.Millisecond

// ErrFrameTimeout is returned when no frame becomes available in time.
var ErrFrameTimeout = errors.New("frame wait timed out")

// ErrConcurrentWait is returned when a second consumer tries to wait.
var ErrConcurrentWait = errors.New("another consumer is already waiting for a frame")

// Sync signals the availability of a new frame.
// Signal can be called from any goroutine; AwaitFrame from a single consumer.
type Sync struct {
	Timeout time.Duration
	Parent  logger.Writer

	mutex      sync.Mutex
	cond       *sync.Cond
	available  bool
	waiting    bool
	generation uint64
	overruns   uint64
	timeouts   uint64
}

// Initialize initializes Sync.
func (s *Sync) Initialize() {
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	s.cond = sync.NewCond(&s.mutex)
}

// Log implements logger.Writer.
func (s *Sync) Log(level logger.Level, format string, args ...any) {
	if s.Parent != nil {
		s.Parent.Log(level, "[frame sync] "+format, args...)
	}
}

// Signal marks a new frame as available and wakes the waiting consumer.
// If the previous frame was not consumed yet, it is counted as dropped.
func (s *Sync) Signal() {
	s.mutex.Lock()
	overrun := s.available
	if overrun {
		s.overruns++
	}
	s.available = true
	s.generation++
	s.mutex.Unlock()

	s.cond.Signal()

	if overrun {
		s.Log(logger.Debug, "frame already signaled, previous frame could be dropped")
	}
}

// AwaitFrame waits until a frame is available or the timeout elapses.
// On success the ready flag is cleared before returning.
func (s *Sync) AwaitFrame() error {
	return s.AwaitFrameTimeout(s.Timeout)
}

// AwaitFrameTimeout is like AwaitFrame with an explicit timeout.
func (s *Sync) AwaitFrameTimeout(timeout time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.waiting {
		return ErrConcurrentWait
	}

	if !s.available {
		s.waiting = true

		// sync.Cond has no timed wait; a timer broadcasts once the deadline passes.
		deadline := time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			s.mutex.Lock()
			s.mutex.Unlock() //nolint:staticcheck
			s.cond.Broadcast()
		})

		for !s.available && time.Now().Before(deadline) {
			s.cond.Wait()
		}

		timer.Stop()
		s.waiting = false

		if !s.available {
			s.timeouts++
			return ErrFrameTimeout
		}
	}

	s.available = false
	return nil
}

// Consume clears a pending signal without waiting.
// It returns whether a frame was available.
func (s *Sync) Consume() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	was := s.available
	s.available = false
	return was
}

// Reset clears any pending signal. It is called when a new session starts.
func (s *Sync) Reset() {
	s.mutex.Lock()
	s.available = false
	s.mutex.Unlock()
}

// Generation returns the number of signals received so far.
func (s *Sync) Generation() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.generation
}

// Overruns returns the number of signals that arrived while a frame was still pending.
func (s *Sync) Overruns() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.overruns
}

// Timeouts returns the number of waits that timed out.
func (s *Sync) Timeouts() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.timeouts
}

package framesync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/test"
)

func TestSyncSignalThenAwait(t *testing.T) {
	s := &Sync{}
	s.Initialize()
	require.Equal(t, DefaultTimeout, s.Timeout)

	s.Signal()
	err := s.AwaitFrame()
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Generation())

	// flag is cleared after a successful wait
	require.False(t, s.Consume())
}

func TestSyncAwaitThenSignal(t *testing.T) {
	s := &Sync{}
	s.Initialize()

	done := make(chan error)
	go func() {
		done <- s.AwaitFrameTimeout(2 * time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Signal()

	require.NoError(t, <-done)
}

func TestSyncTimeout(t *testing.T) {
	s := &Sync{Timeout: 50 * time.Millisecond}
	s.Initialize()

	err := s.AwaitFrame()
	require.ErrorIs(t, err, ErrFrameTimeout)
	require.Equal(t, uint64(1), s.Timeouts())

	// after a restart the primitive is usable again
	s.Reset()
	s.Signal()
	err = s.AwaitFrame()
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Timeouts())
}

func TestSyncOverrun(t *testing.T) {
	var logged []string
	var mutex sync.Mutex

	s := &Sync{
		Parent: test.Logger(func(_ logger.Level, format string, _ ...any) {
			mutex.Lock()
			logged = append(logged, format)
			mutex.Unlock()
		}),
	}
	s.Initialize()

	s.Signal()
	s.Signal()

	require.Equal(t, uint64(1), s.Overruns())
	require.Equal(t, []string{"[frame sync] frame already signaled, previous frame could be dropped"}, logged)

	require.NoError(t, s.AwaitFrame())
}

func TestSyncConcurrentWait(t *testing.T) {
	s := &Sync{}
	s.Initialize()

	done := make(chan error)
	go func() {
		done <- s.AwaitFrameTimeout(time.Second)
	}()

	require.Eventually(t, func() bool {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		return s.waiting
	}, time.Second, 5*time.Millisecond)

	err := s.AwaitFrameTimeout(time.Second)
	require.ErrorIs(t, err, ErrConcurrentWait)

	s.Signal()
	require.NoError(t, <-done)
}

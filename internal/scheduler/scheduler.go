// Package scheduler contains the loop that renders camera frames
// on the display and feeds the recording session.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/counterdumper"
	"github.com/bluenviron/camrecorder/internal/externalcmd"
	"github.com/bluenviron/camrecorder/internal/framesync"
	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/render"
)

const (
	// a tick that is handled later than the period minus this margin is dropped.
	dropMargin = 2 * time.Millisecond

	maxTickGap       = 1 * time.Second
	messageQueueSize = 64
)

// errors.
var (
	ErrAlreadyRecording = errors.New("recording is already in progress")
	ErrNotRecording     = errors.New("recording is not in progress")
	ErrTerminated       = errors.New("terminated")
)

// RecordingState is emitted when recording starts or stops.
type RecordingState struct {
	Enabled bool
	Path    string
	Err     error
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Recording     bool
	Path          string
	Size          uint64
	Duration      time.Duration
	RecordMethod  conf.RecordMethod
	DisplayWidth  int
	DisplayHeight int
	Ticks         uint64
	Rendered      uint64
	Dropped       uint64
	TFPS          int64
}

type msgTick struct {
	ts time.Time
}

type msgStartRecording struct {
	res chan error
}

type msgStopRecording struct {
	res chan error
}

type msgSurfaceChanged struct {
	width  int
	height int
}

type msgSetFilter struct {
	name string
	res  chan error
}

type msgSetRecordMethod struct {
	method conf.RecordMethod
}

type msgStatus struct {
	res chan Status
}

type msgShutdown struct{}

// Scheduler runs one iteration per display refresh.
// Every request coming from other goroutines goes through a single ordered queue
// and is executed by the scheduler routine.
type Scheduler struct {
	Conf             *conf.Conf
	Renderer         render.Renderer
	Display          *render.Display
	Frames           *framesync.Sync
	ExternalCmdPool  *externalcmd.Pool
	OnFPS            func(tfps int64, dropped uint64)
	OnRecordingState func(RecordingState)
	Parent           logger.Writer

	now         func() time.Time
	manualClock bool
	newRecorder func(start time.Time) (recorder, error)

	ctx       context.Context
	ctxCancel func()
	messages  chan any
	clockDone chan struct{}
	done      chan struct{}

	// owned by the scheduler routine
	period           time.Duration
	method           conf.RecordMethod
	viewport         image.Rectangle
	rec              recorder
	recStart         time.Time
	recordedPrevious bool
	lastTick         time.Time
	fps              fpsCounter
	tfps             int64
	ticks            uint64
	rendered         uint64
	dropped          uint64
	surfaceBusy      *counterdumper.CounterDumper
	dropLogger       logger.Writer
}

// Initialize initializes Scheduler and starts its routines.
func (s *Scheduler) Initialize() error {
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRecorder == nil {
		s.newRecorder = s.newSession
	}
	if s.OnFPS == nil {
		s.OnFPS = func(int64, uint64) {}
	}
	if s.OnRecordingState == nil {
		s.OnRecordingState = func(RecordingState) {}
	}

	err := s.Renderer.SetFilter(s.Conf.Filter)
	if err != nil {
		return err
	}

	s.period = s.Conf.FrameInterval()
	s.method = s.Conf.RecordMethod
	s.Renderer.SetSize(s.Display.Width, s.Display.Height)
	s.viewport = render.Letterbox(s.Display.Width, s.Display.Height, s.Conf.VideoWidth, s.Conf.VideoHeight)

	s.surfaceBusy = &counterdumper.CounterDumper{
		OnReport: func(v uint64) {
			s.Log(logger.Warn, "%d frames not submitted, %v", v, codec.ErrSurfaceBusy)
		},
	}
	s.surfaceBusy.Start()

	s.dropLogger = &logger.Limited{
		Parent:   s,
		Interval: 2 * time.Second,
	}

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.messages = make(chan any, messageQueueSize)
	s.clockDone = make(chan struct{})
	s.done = make(chan struct{})

	if s.Conf.RecordOnStart {
		s.messages <- msgStartRecording{}
	}

	s.Log(logger.Info, "running at %.2f Hz, display %dx%d, video %dx%d",
		s.Conf.RefreshRate, s.Display.Width, s.Display.Height, s.Conf.VideoWidth, s.Conf.VideoHeight)

	go s.run()

	if !s.manualClock {
		go s.runClock()
	} else {
		close(s.clockDone)
	}

	return nil
}

// Close stops recording, releases resources and stops the routines.
func (s *Scheduler) Close() {
	s.Log(logger.Info, "closing")

	select {
	case s.messages <- msgShutdown{}:
	case <-s.done:
	}

	<-s.done
	<-s.clockDone
}

// Log implements logger.Writer.
func (s *Scheduler) Log(level logger.Level, format string, args ...any) {
	s.Parent.Log(level, "[scheduler] "+format, args...)
}

func (s *Scheduler) enqueue(m any) bool {
	select {
	case s.messages <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// StartRecording starts a recording session.
func (s *Scheduler) StartRecording() error {
	res := make(chan error, 1)
	if !s.enqueue(msgStartRecording{res: res}) {
		return ErrTerminated
	}

	select {
	case err := <-res:
		return err
	case <-s.ctx.Done():
		return ErrTerminated
	}
}

// StopRecording stops the recording session and finalizes the container.
func (s *Scheduler) StopRecording() error {
	res := make(chan error, 1)
	if !s.enqueue(msgStopRecording{res: res}) {
		return ErrTerminated
	}

	select {
	case err := <-res:
		return err
	case <-s.ctx.Done():
		return ErrTerminated
	}
}

// SurfaceChanged notifies a change in the display geometry.
func (s *Scheduler) SurfaceChanged(width int, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size: %dx%d", width, height)
	}

	if !s.enqueue(msgSurfaceChanged{width: width, height: height}) {
		return ErrTerminated
	}
	return nil
}

// SetFilter changes the filter applied by the renderer.
func (s *Scheduler) SetFilter(name string) error {
	res := make(chan error, 1)
	if !s.enqueue(msgSetFilter{name: name, res: res}) {
		return ErrTerminated
	}

	select {
	case err := <-res:
		return err
	case <-s.ctx.Done():
		return ErrTerminated
	}
}

// SetRecordMethod changes the way frames are rendered for the encoder.
func (s *Scheduler) SetRecordMethod(method conf.RecordMethod) error {
	if !s.enqueue(msgSetRecordMethod{method: method}) {
		return ErrTerminated
	}
	return nil
}

// Status returns the scheduler state.
func (s *Scheduler) Status() (Status, error) {
	res := make(chan Status, 1)
	if !s.enqueue(msgStatus{res: res}) {
		return Status{}, ErrTerminated
	}

	select {
	case st := <-res:
		return st, nil
	case <-s.ctx.Done():
		return Status{}, ErrTerminated
	}
}

// runClock emits a tick per display refresh, like a vsync callback.
// A tick is skipped when the queue is full.
func (s *Scheduler) runClock() {
	defer close(s.clockDone)

	t := time.NewTicker(s.period)
	defer t.Stop()

	for {
		select {
		case ts := <-t.C:
			select {
			case s.messages <- msgTick{ts: ts}:
			default:
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	defer s.ctxCancel()

	for m := range s.messages {
		switch m := m.(type) {
		case msgTick:
			s.doFrame(m.ts)

		case msgStartRecording:
			err := s.doStartRecording()
			if m.res != nil {
				m.res <- err
			}

		case msgStopRecording:
			m.res <- s.doStopRecording(nil)

		case msgSurfaceChanged:
			s.doSurfaceChanged(m.width, m.height)

		case msgSetFilter:
			m.res <- s.Renderer.SetFilter(m.name)

		case msgSetRecordMethod:
			s.method = m.method
			s.Log(logger.Info, "record method set to %v", m.method)

		case msgStatus:
			m.res <- s.doStatus()

		case msgShutdown:
			s.doShutdown()
			return
		}
	}
}

func (s *Scheduler) doFrame(ts time.Time) {
	s.ticks++

	if !s.lastTick.IsZero() {
		if gap := ts.Sub(s.lastTick); gap > maxTickGap {
			s.Log(logger.Debug, "tick gap of %v, resetting frame statistics", gap)
			s.fps.reset()
		}
	}
	s.lastTick = ts

	late := s.now().Sub(ts)
	if max := s.period - dropMargin; late > max {
		s.dropLogger.Log(logger.Debug, "tick is %v late, max %v, skipping render", late, max)
		s.recordedPrevious = false
		s.dropped++
		return
	}

	if s.rec == nil || s.recordedPrevious {
		s.recordedPrevious = false
		s.drawDisplay()
	} else {
		s.recordedPrevious = true

		err := s.drawRecord(ts)
		if err != nil {
			if errors.Is(err, errMaxSizeReached) {
				s.Log(logger.Info, "%v", err)
				s.doStopRecording(nil) //nolint:errcheck
			} else {
				s.Log(logger.Error, "recording aborted: %v", err)
				s.doStopRecording(err) //nolint:errcheck
			}
		}
	}

	s.rendered++

	if tfps, ok := s.fps.update(ts); ok {
		s.tfps = tfps
		s.OnFPS(tfps, s.dropped)
	}
}

func (s *Scheduler) drawDisplay() {
	s.Renderer.Draw(s.Display.Image(), s.Display.Image().Bounds())
	s.Display.SwapBuffers()
}

func (s *Scheduler) drawRecord(ts time.Time) error {
	if s.Frames != nil {
		err := s.Frames.AwaitFrame()
		if err != nil {
			return err
		}
	}

	surface := s.rec.surface()
	dst := surface.Image()

	switch s.method {
	case conf.RecordMethodOffscreen:
		s.Renderer.RenderOffscreen()

		s.Renderer.Blit(s.Display.Image(), s.Display.Image().Bounds())
		s.Display.SwapBuffers()

		render.Clear(dst)
		s.Renderer.Blit(dst, s.viewport)

	default:
		s.drawDisplay()

		render.Clear(dst)
		s.Renderer.Draw(dst, s.viewport)
	}

	pts := ts.Sub(s.recStart)
	if pts < 0 {
		pts = 0
	}
	surface.SetPresentationTime(pts)

	err := surface.SwapBuffers()
	if err != nil {
		if !errors.Is(err, codec.ErrSurfaceBusy) {
			return err
		}
		s.surfaceBusy.Increase()
	}

	return s.rec.drain()
}

func (s *Scheduler) doStartRecording() error {
	if s.rec != nil {
		return ErrAlreadyRecording
	}

	start := s.now()

	rec, err := s.newRecorder(start)
	if err != nil {
		s.Log(logger.Error, "unable to start recording: %v", err)
		return err
	}

	s.rec = rec
	s.recStart = start
	s.recordedPrevious = false

	if s.Frames != nil {
		s.Frames.Reset()
	}

	s.Log(logger.Info, "recording to %s", rec.path())
	s.OnRecordingState(RecordingState{Enabled: true, Path: rec.path()})

	return nil
}

func (s *Scheduler) doStopRecording(cause error) error {
	if s.rec == nil {
		return ErrNotRecording
	}

	rec := s.rec
	s.rec = nil
	s.recordedPrevious = false

	err := rec.close()
	if err != nil {
		s.Log(logger.Error, "unable to finalize recording: %v", err)
		if cause == nil {
			cause = err
		}
	}

	s.OnRecordingState(RecordingState{Enabled: false, Path: rec.path(), Err: cause})

	return err
}

func (s *Scheduler) doSurfaceChanged(width int, height int) {
	s.Display.Resize(width, height)
	s.Renderer.SetSize(width, height)
	s.viewport = render.Letterbox(width, height, s.Conf.VideoWidth, s.Conf.VideoHeight)

	s.Log(logger.Debug, "surface changed to %dx%d, video viewport %v", width, height, s.viewport)
}

func (s *Scheduler) doStatus() Status {
	st := Status{
		Recording:     s.rec != nil,
		RecordMethod:  s.method,
		DisplayWidth:  s.Display.Width,
		DisplayHeight: s.Display.Height,
		Ticks:         s.ticks,
		Rendered:      s.rendered,
		Dropped:       s.dropped,
		TFPS:          s.tfps,
	}

	if s.rec != nil {
		st.Path = s.rec.path()
		st.Size = s.rec.size()
		st.Duration = s.rec.duration()
	}

	return st
}

func (s *Scheduler) doShutdown() {
	if s.rec != nil {
		s.doStopRecording(nil) //nolint:errcheck
	}

	s.surfaceBusy.Stop()
}

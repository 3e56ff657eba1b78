package codec

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/camrecorder/internal/logger"
)

// Job is an input buffer handed to a Processor.
type Job struct {
	Data  []byte
	PTS   int64
	Flags BufferFlag
}

// Emitter receives the output of a Processor.
type Emitter interface {
	EmitFormat(*Format)
	EmitBuffer(data []byte, pts int64, flags BufferFlag)
}

// Processor is the actual encoding routine of a software encoder.
type Processor interface {
	// Process is called by the engine routine once per queued input buffer.
	Process(job *Job, out Emitter) error

	// Flush is called after an input buffer with FlagEndOfStream.
	Flush(out Emitter) error

	Close()
}

type outputEvent struct {
	format *Format
	data   []byte
	pts    int64
	flags  BufferFlag
}

type queuedInput struct {
	index int
	size  int
	pts   int64
	flags BufferFlag
}

// Engine implements the buffer exchange of an asynchronous encoder.
// Input buffers are processed in order by a dedicated routine; outputs are
// kept in a bounded queue until they are dequeued and released.
type Engine struct {
	InputBufferCount  int
	InputBufferSize   int
	OutputBufferCount int
	Processor         Processor
	Parent            logger.Writer

	mutex        sync.Mutex
	started      bool
	released     bool
	inputBuffers [][]byte
	outputs      map[int]*outputEvent
	nextOutput   int
	format       *Format
	errLogger    logger.Writer
	lastPTS      int64

	freeInputs chan int
	queued     chan queuedInput
	eos        chan struct{}
	ready      chan *outputEvent
	terminate  chan struct{}
	done       chan struct{}
}

// Initialize initializes Engine.
func (e *Engine) Initialize() {
	if e.InputBufferCount == 0 {
		e.InputBufferCount = 4
	}
	if e.OutputBufferCount == 0 {
		e.OutputBufferCount = 8
	}

	e.inputBuffers = make([][]byte, e.InputBufferCount)
	for i := range e.inputBuffers {
		e.inputBuffers[i] = make([]byte, e.InputBufferSize)
	}

	e.outputs = make(map[int]*outputEvent)
	e.errLogger = &logger.Limited{
		Parent:   e,
		Interval: 2 * time.Second,
	}
}

// Log implements logger.Writer.
func (e *Engine) Log(level logger.Level, format string, args ...any) {
	if e.Parent != nil {
		e.Parent.Log(level, format, args...)
	}
}

// Start starts the engine routine.
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.released {
		return fmt.Errorf("engine has been released")
	}
	if e.started {
		return nil
	}

	e.freeInputs = make(chan int, e.InputBufferCount)
	for i := 0; i < e.InputBufferCount; i++ {
		e.freeInputs <- i
	}
	e.queued = make(chan queuedInput, e.InputBufferCount)
	e.eos = make(chan struct{}, 1)
	e.ready = make(chan *outputEvent, e.OutputBufferCount)
	e.terminate = make(chan struct{})
	e.done = make(chan struct{})
	e.started = true

	go e.run()

	return nil
}

// Stop stops the engine routine. Pending buffers are discarded.
func (e *Engine) Stop() error {
	e.mutex.Lock()
	if !e.started {
		e.mutex.Unlock()
		return nil
	}
	e.started = false
	e.mutex.Unlock()

	close(e.terminate)
	<-e.done

	return nil
}

// Release stops the engine and frees the processor. It can be called multiple times.
func (e *Engine) Release() {
	e.Stop() //nolint:errcheck

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.released {
		return
	}
	e.released = true

	e.Processor.Close()
	e.outputs = nil
	e.inputBuffers = nil
}

// OutputFormat returns the output format, if it has been reported.
func (e *Engine) OutputFormat() *Format {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.format
}

func (e *Engine) isStarted() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.started
}

// DequeueInputBuffer returns the index of a free input buffer,
// or InfoTryAgainLater when none becomes free before the timeout.
func (e *Engine) DequeueInputBuffer(timeout time.Duration) int {
	if !e.isStarted() {
		return InfoTryAgainLater
	}

	if timeout <= 0 {
		select {
		case i := <-e.freeInputs:
			return i
		default:
			return InfoTryAgainLater
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case i := <-e.freeInputs:
		return i
	case <-t.C:
		return InfoTryAgainLater
	case <-e.terminate:
		return InfoTryAgainLater
	}
}

// InputBuffer returns the input buffer with given index.
func (e *Engine) InputBuffer(index int) []byte {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if index < 0 || index >= len(e.inputBuffers) {
		return nil
	}
	return e.inputBuffers[index]
}

// QueueInputBuffer submits a filled input buffer to the engine routine.
func (e *Engine) QueueInputBuffer(index int, size int, pts int64, flags BufferFlag) error {
	if !e.isStarted() {
		return ErrNotStarted
	}
	if index < 0 || index >= e.InputBufferCount {
		return ErrInvalidIndex
	}
	if size < 0 || size > e.InputBufferSize {
		return fmt.Errorf("invalid input size: %d", size)
	}

	// queued has the same capacity as the number of input buffers,
	// therefore this never blocks.
	e.queued <- queuedInput{
		index: index,
		size:  size,
		pts:   pts,
		flags: flags,
	}
	return nil
}

// SignalEndOfInputStream asks the engine routine to flush the processor
// and to emit an end-of-stream buffer after the inputs queued so far.
// It does not need a free input buffer.
func (e *Engine) SignalEndOfInputStream() error {
	if !e.isStarted() {
		return ErrNotStarted
	}

	select {
	case e.eos <- struct{}{}:
	default:
	}
	return nil
}

// DequeueOutputBuffer returns the index of an output buffer and fills info,
// or one of the Info statuses.
func (e *Engine) DequeueOutputBuffer(info *BufferInfo, timeout time.Duration) int {
	if !e.isStarted() {
		return InfoTryAgainLater
	}

	var ev *outputEvent

	if timeout <= 0 {
		select {
		case ev = <-e.ready:
		default:
			return InfoTryAgainLater
		}
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()

		select {
		case ev = <-e.ready:
		case <-t.C:
			return InfoTryAgainLater
		case <-e.terminate:
			return InfoTryAgainLater
		}
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if ev.format != nil {
		e.format = ev.format
		return InfoOutputFormatChanged
	}

	index := e.nextOutput
	e.nextOutput++
	e.outputs[index] = ev

	*info = BufferInfo{
		Offset: 0,
		Size:   len(ev.data),
		PTS:    ev.pts,
		Flags:  ev.flags,
	}

	return index
}

// OutputBuffer returns the output buffer with given index.
func (e *Engine) OutputBuffer(index int) []byte {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	ev, ok := e.outputs[index]
	if !ok {
		return nil
	}
	return ev.data
}

// ReleaseOutputBuffer gives an output buffer back to the engine.
func (e *Engine) ReleaseOutputBuffer(index int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.outputs, index)
}

// EmitFormat implements Emitter.
func (e *Engine) EmitFormat(f *Format) {
	e.push(&outputEvent{format: f})
}

// EmitBuffer implements Emitter.
func (e *Engine) EmitBuffer(data []byte, pts int64, flags BufferFlag) {
	e.push(&outputEvent{
		data:  data,
		pts:   pts,
		flags: flags,
	})
}

// push blocks while the output queue is full, so that a consumer that
// stops draining stalls the routine and, in turn, the input buffers.
func (e *Engine) push(ev *outputEvent) {
	select {
	case e.ready <- ev:
	case <-e.terminate:
	}
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case in := <-e.queued:
			e.process(in)

		case <-e.eos:
			e.drainQueued()
			e.flush()

		case <-e.terminate:
			return
		}
	}
}

func (e *Engine) drainQueued() {
	for {
		select {
		case in := <-e.queued:
			e.process(in)
		default:
			return
		}
	}
}

func (e *Engine) flush() {
	err := e.Processor.Flush(e)
	if err != nil {
		e.errLogger.Log(logger.Warn, "unable to flush encoder: %v", err)
	}
	e.EmitBuffer(nil, e.lastPTS, FlagEndOfStream)
}

func (e *Engine) process(in queuedInput) {
	// input data is copied so that the buffer can be reused immediately.
	data := make([]byte, in.size)
	copy(data, e.inputBuffers[in.index][:in.size])

	select {
	case e.freeInputs <- in.index:
	default:
	}

	if in.pts > e.lastPTS {
		e.lastPTS = in.pts
	}

	if in.size > 0 {
		err := e.Processor.Process(&Job{
			Data:  data,
			PTS:   in.pts,
			Flags: in.flags &^ FlagEndOfStream,
		}, e)
		if err != nil {
			e.errLogger.Log(logger.Warn, "unable to encode buffer: %v", err)
		}
	}

	if (in.flags & FlagEndOfStream) != 0 {
		e.flush()
	}
}

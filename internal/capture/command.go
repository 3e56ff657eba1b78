package capture

import (
	"strconv"
	"sync"

	"github.com/bluenviron/gortsplib/v4/pkg/ringbuffer"

	"github.com/bluenviron/camrecorder/internal/counterdumper"
	"github.com/bluenviron/camrecorder/internal/externalcmd"
	"github.com/bluenviron/camrecorder/internal/logger"
)

const (
	defaultCommandQueueSize = 256
	defaultCommandMaxBuffer = 1024 * 1024
)

type commandWriter struct {
	s *CommandSource
}

func (w *commandWriter) Write(p []byte) (int, error) {
	ok := w.s.queue.Push(append([]byte(nil), p...))
	if !ok {
		w.s.discarded.Increase()
	}
	return len(p), nil
}

// CommandSource runs a capture command and reads raw PCM from its standard output.
// The command can use the $CAMREC_AUDIO_RATE and $CAMREC_AUDIO_CHANNELS variables.
type CommandSource struct {
	Command      string
	SampleRate   int
	ChannelCount int
	QueueSize    int
	MaxBuffered  int
	Pool         *externalcmd.Pool
	Parent       logger.Writer

	queue     *ringbuffer.RingBuffer
	cmd       *externalcmd.Cmd
	discarded *counterdumper.CounterDumper

	mutex    sync.Mutex
	buffered []byte

	done chan struct{}
}

// Initialize initializes CommandSource and starts the command.
func (s *CommandSource) Initialize() error {
	if s.QueueSize == 0 {
		s.QueueSize = defaultCommandQueueSize
	}
	if s.MaxBuffered == 0 {
		s.MaxBuffered = defaultCommandMaxBuffer
	}

	var err error
	s.queue, err = ringbuffer.New(uint64(s.QueueSize))
	if err != nil {
		return err
	}

	s.discarded = &counterdumper.CounterDumper{
		OnReport: func(v uint64) {
			s.Log(logger.Warn, "%d audio chunks discarded, capture reader is too slow", v)
		},
	}
	s.discarded.Start()

	s.done = make(chan struct{})
	go s.run()

	s.Log(logger.Info, "starting '%s'", s.Command)

	s.cmd = &externalcmd.Cmd{
		Pool:    s.Pool,
		Cmdstr:  s.Command,
		Restart: true,
		Env: externalcmd.Environment{
			"CAMREC_AUDIO_RATE":     strconv.FormatInt(int64(s.SampleRate), 10),
			"CAMREC_AUDIO_CHANNELS": strconv.FormatInt(int64(s.ChannelCount), 10),
		},
		Stdout: &commandWriter{s: s},
		OnExit: func(err error) {
			s.Log(logger.Warn, "capture command exited: %v", err)
		},
	}
	s.cmd.Initialize()

	return nil
}

// Log implements logger.Writer.
func (s *CommandSource) Log(level logger.Level, format string, args ...any) {
	s.Parent.Log(level, "[audio capture] "+format, args...)
}

// Close implements PCMSource.
func (s *CommandSource) Close() {
	s.cmd.Close()
	s.queue.Close()
	<-s.done
	s.discarded.Stop()
}

func (s *CommandSource) run() {
	defer close(s.done)

	for {
		item, ok := s.queue.Pull()
		if !ok {
			return
		}
		chunk := item.([]byte)

		s.mutex.Lock()
		if len(s.buffered)+len(chunk) > s.MaxBuffered {
			s.mutex.Unlock()
			s.discarded.Increase()
			continue
		}
		s.buffered = append(s.buffered, chunk...)
		s.mutex.Unlock()
	}
}

// Read implements PCMSource.
func (s *CommandSource) Read(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := copy(p, s.buffered)
	s.buffered = s.buffered[:copy(s.buffered, s.buffered[n:])]
	return n, nil
}

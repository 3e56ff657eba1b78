package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/google/uuid"

	"github.com/bluenviron/camrecorder/internal/capture"
	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/encoder"
	"github.com/bluenviron/camrecorder/internal/externalcmd"
	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/muxer"
)

var errMaxSizeReached = errors.New("maximum recording size reached")

// recorder is a recording session as seen by the scheduler.
type recorder interface {
	path() string
	surface() codec.Surface
	drain() error
	close() error
	size() uint64
	duration() time.Duration
}

// resources is a stack of acquired resources, released in reverse order.
type resources struct {
	names    []string
	releases []func()
}

func (r *resources) push(name string, release func()) {
	r.names = append(r.names, name)
	r.releases = append(r.releases, release)
}

func (r *resources) release(l logger.Writer) {
	for i := len(r.releases) - 1; i >= 0; i-- {
		l.Log(logger.Debug, "releasing %s", r.names[i])
		r.releases[i]()
	}
	r.names = nil
	r.releases = nil
}

// session owns the container, the encoders and the audio capture of a recording.
type session struct {
	conf   *conf.Conf
	start  time.Time
	now    func() time.Time
	pool   *externalcmd.Pool
	parent logger.Writer

	id       uuid.UUID
	filePath string
	res      resources
	mux      *muxer.Muxer
	video    *encoder.VideoBridge
	source   capture.PCMSource
	audio    *encoder.AudioBridge
}

func (s *Scheduler) newSession(start time.Time) (recorder, error) {
	se := &session{
		conf:   s.Conf,
		start:  start,
		now:    s.now,
		pool:   s.ExternalCmdPool,
		parent: s,
	}
	err := se.initialize()
	if err != nil {
		return nil, err
	}
	return se, nil
}

// Log implements logger.Writer.
func (s *session) Log(level logger.Level, format string, args ...any) {
	s.parent.Log(level, "[recording %s] "+format, append([]any{s.id.String()[:8]}, args...)...)
}

func (s *session) initialize() error {
	s.id = uuid.New()
	s.filePath = recordPath{ID: s.id, Start: s.start}.encode(s.conf.RecordPath, s.conf.RecordFormat)

	err := s.acquire()
	if err != nil {
		s.res.release(s)
		return err
	}

	return nil
}

func (s *session) clock() time.Duration {
	return s.now().Sub(s.start)
}

func (s *session) acquire() error {
	tracks := []codec.Kind{codec.KindVideo}
	if s.conf.AudioSource != conf.AudioSourceNone {
		tracks = append(tracks, codec.KindAudio)
	}

	s.mux = &muxer.Muxer{
		Path:   s.filePath,
		Format: s.conf.RecordFormat,
		Tracks: tracks,
		OnStarted: func(bindings []muxer.TrackBinding) {
			s.Log(logger.Debug, "container started with %d tracks", len(bindings))
		},
		Parent: s,
	}
	err := s.mux.Initialize()
	if err != nil {
		return err
	}
	s.res.push("muxer", func() {
		s.mux.Finish() //nolint:errcheck
	})

	videoEnc, err := codec.NewVideoEncoder(s.conf.VideoEncoder, s)
	if err != nil {
		return err
	}

	s.video = &encoder.VideoBridge{
		Encoder: videoEnc,
		Config: codec.Config{
			Width:            s.conf.VideoWidth,
			Height:           s.conf.VideoHeight,
			Bitrate:          s.conf.VideoBitrate,
			FrameRate:        s.conf.VideoFPS,
			KeyframeInterval: s.conf.VideoKeyframeInterval,
		},
		Sink:        s.mux,
		PollTimeout: time.Duration(s.conf.EncoderPollTimeout),
		Parent:      s,
	}
	err = s.video.Start()
	if err != nil {
		return err
	}
	s.res.push("video encoder", s.video.Release)

	if s.conf.AudioSource == conf.AudioSourceNone {
		return nil
	}

	err = s.openSource()
	if err != nil {
		return err
	}
	s.res.push("audio capture", s.source.Close)

	audioEnc, err := codec.NewAudioEncoder(s.conf.AudioEncoder, s)
	if err != nil {
		return err
	}

	s.audio = &encoder.AudioBridge{
		Encoder: audioEnc,
		Config: codec.Config{
			Bitrate:      s.conf.AudioBitrate,
			SampleRate:   s.conf.AudioSampleRate,
			ChannelCount: s.conf.AudioChannels,
		},
		Source:      s.source,
		Sink:        s.mux,
		Clock:       s.clock,
		PollTimeout: time.Duration(s.conf.EncoderPollTimeout),
		Parent:      s,
	}
	err = s.audio.Start()
	if err != nil {
		return err
	}
	s.res.push("audio encoder", s.audio.Release)

	return nil
}

func (s *session) openSource() error {
	switch s.conf.AudioSource {
	case conf.AudioSourceCommand:
		src := &capture.CommandSource{
			Command:      s.conf.AudioCommand,
			SampleRate:   s.conf.AudioSampleRate,
			ChannelCount: s.conf.AudioChannels,
			Pool:         s.pool,
			Parent:       s,
		}
		err := src.Initialize()
		if err != nil {
			return err
		}
		s.source = src

	default:
		src := &capture.ToneSource{
			SampleRate:   s.conf.AudioSampleRate,
			ChannelCount: s.conf.AudioChannels,
			Now:          s.now,
		}
		src.Initialize()
		s.source = src
	}

	return nil
}

func (s *session) path() string {
	return s.filePath
}

func (s *session) surface() codec.Surface {
	return s.video.Surface()
}

func (s *session) size() uint64 {
	return s.mux.Size()
}

func (s *session) duration() time.Duration {
	return s.mux.Duration()
}

// drain forwards the available encoder output to the container.
func (s *session) drain() error {
	err := s.video.Drain(false)
	if err != nil {
		return err
	}

	if s.audio != nil {
		err = s.audio.Feed()
		if err != nil {
			return err
		}

		err = s.audio.Drain(false)
		if err != nil {
			return err
		}
	}

	if s.conf.RecordMaxSize != 0 && s.mux.Size() >= uint64(s.conf.RecordMaxSize) {
		return fmt.Errorf("%w (%s)", errMaxSizeReached, bytefmt.ByteSize(uint64(s.conf.RecordMaxSize)))
	}

	return nil
}

// close drains the encoders until the end of stream, finalizes the container
// and releases all resources.
func (s *session) close() error {
	if s.video.State() == encoder.StateEncoding {
		err := s.video.SignalEndOfStream()
		if err != nil {
			s.Log(logger.Warn, "unable to signal end of stream: %v", err)
		}
	}

	if s.audio != nil {
		s.audio.SetRecorderDone()
	}

	err := s.video.Drain(true)
	if err != nil {
		s.Log(logger.Warn, "unable to drain video encoder: %v", err)
	}

	if s.audio != nil {
		err = s.audio.Finish()
		if err != nil {
			s.Log(logger.Warn, "unable to drain audio encoder: %v", err)
		}
	}

	duration := s.mux.Duration()

	finalized, err := s.mux.Finish()
	s.res.release(s)

	if err != nil {
		return err
	}

	if finalized {
		s.Log(logger.Info, "saved %s, duration %v", s.filePath, duration)
		s.onComplete(duration)
	}

	return nil
}

func (s *session) onComplete(duration time.Duration) {
	if s.conf.RunOnRecordComplete == "" {
		return
	}

	abs, err := filepath.Abs(s.filePath)
	if err != nil {
		abs = s.filePath
	}

	s.Log(logger.Info, "runOnRecordComplete command launched")

	cmd := &externalcmd.Cmd{
		Pool:    s.pool,
		Cmdstr:  s.conf.RunOnRecordComplete,
		Restart: false,
		Env: externalcmd.Environment{
			"CAMREC_RECORD_ID":       s.id.String(),
			"CAMREC_RECORD_PATH":     abs,
			"CAMREC_RECORD_DURATION": strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		},
		Stdout: os.Stdout,
		OnExit: func(err error) {
			if err != nil {
				s.Log(logger.Warn, "runOnRecordComplete command failed: %v", err)
			}
		},
	}
	cmd.Initialize()
}

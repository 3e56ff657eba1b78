// Package muxer contains the container multiplexer.
package muxer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"code.cloudfoundry.org/bytefmt"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/counterdumper"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// errors.
var (
	ErrFormatChangedTwice = errors.New("track format changed twice")
	ErrMuxNotReady        = errors.New("container is not started")
	ErrUnsupportedCodec   = errors.New("codec is not supported by the container")
)

func multiplyAndDivide(v, m, d int64) int64 {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

// State is the state of a Muxer.
type State int

// states.
const (
	StateNotStarted State = iota
	StateAwaitingFormats
	StateStarted
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "notStarted"
	case StateAwaitingFormats:
		return "awaitingFormats"
	case StateStarted:
		return "started"
	}
	return "stopped"
}

// TrackBinding maps a logical track to its index inside the container.
type TrackBinding struct {
	Track codec.Kind
	Index int
}

type muxerTrack struct {
	binding TrackBinding
	format  *codec.Format
	lastPTS int64
	written bool
}

func (t *muxerTrack) id() int {
	return t.binding.Index + 1
}

// sampleCount returns the number of audio samples contained in a payload, when it can be derived.
func (t *muxerTrack) sampleCount(payloadSize int) uint32 {
	switch t.format.MIME {
	case codec.MIMELPCM:
		return uint32(payloadSize / (2 * t.format.ChannelCount))

	case codec.MIMEMPEG4Audio:
		return 1024
	}
	return 0
}

type format interface {
	initialize() error
	writeSample(t *muxerTrack, pts int64, pkt *codec.EncodedPacket) error
	finalize() error
	abort()
}

// Muxer is the single authority over the state of a container file.
// The container is started only when the formats of all tracks are known.
type Muxer struct {
	Path      string
	Format    conf.RecordFormat
	Tracks    []codec.Kind
	OnStarted func([]TrackBinding)
	Parent    logger.Writer

	state     State
	formats   map[codec.Kind]*codec.Format
	tracks    map[codec.Kind]*muxerTrack
	bindings  []TrackBinding
	f         format
	newFormat func() format
	written   uint64
	size      uint64
	firstPTS  int64
	lastPTS   int64
	notReady  *counterdumper.CounterDumper
}

// Initialize initializes Muxer.
func (m *Muxer) Initialize() error {
	if len(m.Tracks) == 0 {
		return fmt.Errorf("no tracks")
	}

	seen := make(map[codec.Kind]struct{})
	for _, track := range m.Tracks {
		if _, ok := seen[track]; ok {
			return fmt.Errorf("track %v is configured twice", track)
		}
		seen[track] = struct{}{}
	}

	if m.newFormat == nil {
		m.newFormat = m.defaultFormat
	}

	m.formats = make(map[codec.Kind]*codec.Format)
	m.tracks = make(map[codec.Kind]*muxerTrack)

	m.notReady = &counterdumper.CounterDumper{
		OnReport: func(v uint64) {
			m.Log(logger.Warn, "%d samples dropped, %v", v, ErrMuxNotReady)
		},
	}
	m.notReady.Start()

	m.state = StateAwaitingFormats

	return nil
}

// Log implements logger.Writer.
func (m *Muxer) Log(level logger.Level, format string, args ...any) {
	m.Parent.Log(level, "[muxer] "+format, args...)
}

func (m *Muxer) defaultFormat() format {
	switch m.Format {
	case conf.RecordFormatFMP4:
		return &formatFMP4{m: m}

	case conf.RecordFormatMPEGTS:
		return &formatMPEGTS{m: m}

	default:
		return &formatMP4{m: m}
	}
}

// State returns the state.
func (m *Muxer) State() State {
	return m.state
}

// Started returns whether the container is started.
func (m *Muxer) Started() bool {
	return m.state == StateStarted
}

// Bindings returns the track bindings. They are available once the container is started.
func (m *Muxer) Bindings() []TrackBinding {
	return m.bindings
}

// RegisterFormat records the format of a track.
// Registering the same format again does nothing.
func (m *Muxer) RegisterFormat(track codec.Kind, format *codec.Format) error {
	if !slices.Contains(m.Tracks, track) {
		return fmt.Errorf("track %v is not configured", track)
	}

	if m.state == StateStopped {
		return fmt.Errorf("unable to register a format in state %v", m.state)
	}

	if cur, ok := m.formats[track]; ok {
		if !cur.Equal(format) {
			return fmt.Errorf("%w: %v", ErrFormatChangedTwice, track)
		}
		return nil
	}

	if m.state != StateAwaitingFormats {
		return fmt.Errorf("unable to register a format in state %v", m.state)
	}

	m.formats[track] = format
	m.Log(logger.Debug, "%v format is %s", track, format.MIME)

	if len(m.formats) == len(m.Tracks) {
		return m.start()
	}

	return nil
}

func (m *Muxer) start() error {
	// bindings do not depend on the arrival order of formats.
	kinds := slices.Clone(m.Tracks)
	slices.Sort(kinds)

	bindings := make([]TrackBinding, len(kinds))
	for i, track := range kinds {
		bindings[i] = TrackBinding{Track: track, Index: i}
		m.tracks[track] = &muxerTrack{
			binding: bindings[i],
			format:  m.formats[track],
		}
	}

	// writers build their track list from the bindings.
	m.bindings = bindings

	err := os.MkdirAll(filepath.Dir(m.Path), 0o755)
	if err != nil {
		m.stopNotStarted()
		return err
	}

	f := m.newFormat()
	err = f.initialize()
	if err != nil {
		m.stopNotStarted()
		return err
	}

	m.f = f
	m.state = StateStarted

	m.Log(logger.Info, "container started, %s", m.describeBindings())

	if m.OnStarted != nil {
		m.OnStarted(bindings)
	}

	return nil
}

// stopNotStarted stops a container that could not be started.
// Later registrations fail instead of being treated as repeated ones.
func (m *Muxer) stopNotStarted() {
	m.state = StateStopped
	m.notReady.Stop()
}

func (m *Muxer) describeBindings() string {
	out := ""
	for i, b := range m.bindings {
		if i != 0 {
			out += ", "
		}
		out += fmt.Sprintf("%v=%d", b.Track, b.Index)
	}
	return out
}

func (m *Muxer) sortedTracks() []*muxerTrack {
	out := make([]*muxerTrack, len(m.bindings))
	for i, b := range m.bindings {
		out[i] = m.tracks[b.Track]
	}
	return out
}

// WriteSample writes a sample into the container.
// Samples received before the container is started are dropped and counted.
// The packet payload is not retained after the call returns.
func (m *Muxer) WriteSample(track codec.Kind, pkt *codec.EncodedPacket) error {
	if m.state != StateStarted {
		m.notReady.Increase()
		return nil
	}

	t, ok := m.tracks[track]
	if !ok {
		return fmt.Errorf("track %v is not configured", track)
	}

	pts := pkt.PTS
	if t.written && pts < t.lastPTS {
		pts = t.lastPTS
	}

	err := m.f.writeSample(t, pts, pkt)
	if err != nil {
		return err
	}

	if m.written == 0 || pts < m.firstPTS {
		m.firstPTS = pts
	}
	if pts > m.lastPTS {
		m.lastPTS = pts
	}

	t.lastPTS = pts
	t.written = true
	m.written++
	m.size += uint64(len(pkt.Data))

	return nil
}

// Written returns the number of samples written into the container.
func (m *Muxer) Written() uint64 {
	return m.written
}

// Size returns the amount of payload written into the container.
func (m *Muxer) Size() uint64 {
	return m.size
}

// Duration returns the time span covered by written samples.
func (m *Muxer) Duration() time.Duration {
	if m.written == 0 {
		return 0
	}
	return time.Duration(m.lastPTS-m.firstPTS) * time.Microsecond
}

// NotReady returns the number of samples dropped because the container was not started.
func (m *Muxer) NotReady() uint64 {
	if m.notReady == nil {
		return 0
	}
	return m.notReady.Total()
}

// Finish finalizes and closes the container.
// If no sample was written, no finalization is attempted and no file is left behind.
// It returns whether the container was finalized.
func (m *Muxer) Finish() (bool, error) {
	prev := m.state
	if prev == StateStopped {
		return false, nil
	}

	m.state = StateStopped
	if m.notReady != nil {
		m.notReady.Stop()
	}

	if prev != StateStarted {
		return false, nil
	}

	if m.written == 0 {
		m.Log(logger.Info, "no samples were written, discarding %s", m.Path)
		m.f.abort()
		return false, nil
	}

	err := m.f.finalize()
	if err != nil {
		m.f.abort()
		return false, err
	}

	m.Log(logger.Info, "container %s finalized, %d samples, %s",
		m.Path, m.written, bytefmt.ByteSize(m.size))

	return true, nil
}

package muxer

import (
	"io"
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/logger"
)

const (
	fmp4PartDuration = 1 * time.Second
)

func timestampToDuration(t int64, clockRate uint32) time.Duration {
	return time.Duration(multiplyAndDivide(t, int64(time.Second), int64(clockRate)))
}

func writeInit(w io.Writer, tracks []*formatFMP4Track) error {
	initTracks := make([]*fmp4.InitTrack, len(tracks))
	for i, track := range tracks {
		initTracks[i] = track.initTrack
	}

	init := fmp4.Init{
		Tracks: initTracks,
	}

	var buf seekablebuffer.Buffer
	err := init.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = w.Write(buf.Bytes())
	return err
}

type formatFMP4Sample struct {
	*fmp4.Sample
	dts int64
}

type formatFMP4Track struct {
	t          *muxerTrack
	initTrack  *fmp4.InitTrack
	nextSample *formatFMP4Sample
	partTrack  *fmp4.PartTrack
}

// formatFMP4 writes a fragmented MP4 file, one fragment per second.
type formatFMP4 struct {
	m *Muxer

	fi                 *os.File
	tracks             []*formatFMP4Track
	hasVideo           bool
	nextSequenceNumber uint32
	partStarted        bool
	partStart          time.Duration
}

func (f *formatFMP4) initialize() error {
	for _, t := range f.m.sortedTracks() {
		f.tracks = append(f.tracks, &formatFMP4Track{
			t: t,
			initTrack: &fmp4.InitTrack{
				ID:        t.id(),
				TimeScale: t.format.TimeScale(),
				Codec:     t.format.Codec,
			},
		})

		if t.binding.Track == codec.KindVideo {
			f.hasVideo = true
		}
	}

	fi, err := os.Create(f.m.Path)
	if err != nil {
		return err
	}

	err = writeInit(fi, f.tracks)
	if err != nil {
		fi.Close()
		os.Remove(f.m.Path) //nolint:errcheck
		return err
	}

	f.fi = fi
	return nil
}

func (f *formatFMP4) writeSample(t *muxerTrack, pts int64, pkt *codec.EncodedPacket) error {
	track := f.tracks[t.binding.Index]

	payload, err := payloadMP4(t, pkt.Data)
	if err != nil {
		return err
	}

	if t.format.MIME != codec.MIMEH264 {
		payload = append([]byte(nil), payload...)
	}

	sample := &formatFMP4Sample{
		Sample: &fmp4.Sample{
			IsNonSyncSample: t.binding.Track == codec.KindVideo && !pkt.IsKeyFrame(),
			Payload:         payload,
		},
		dts: multiplyAndDivide(pts, int64(track.initTrack.TimeScale), 1000000),
	}

	prev := track.nextSample
	track.nextSample = sample
	if prev == nil {
		return nil
	}

	prev.Duration = uint32(sample.dts - prev.dts)
	f.appendToPart(track, prev)

	nextTime := timestampToDuration(sample.dts, track.initTrack.TimeScale)

	if (!f.hasVideo || t.binding.Track == codec.KindVideo) &&
		!sample.IsNonSyncSample &&
		(nextTime-f.partStart) >= fmp4PartDuration {
		return f.writePart()
	}

	return nil
}

func (f *formatFMP4) appendToPart(track *formatFMP4Track, sample *formatFMP4Sample) {
	if !f.partStarted {
		f.partStarted = true
		f.partStart = timestampToDuration(sample.dts, track.initTrack.TimeScale)
	}

	if track.partTrack == nil {
		track.partTrack = &fmp4.PartTrack{
			ID:       track.initTrack.ID,
			BaseTime: uint64(sample.dts),
		}
	}

	track.partTrack.Samples = append(track.partTrack.Samples, sample.Sample)
}

func (f *formatFMP4) writePart() error {
	var partTracks []*fmp4.PartTrack

	for _, track := range f.tracks {
		if track.partTrack != nil {
			partTracks = append(partTracks, track.partTrack)
			track.partTrack = nil
		}
	}

	f.partStarted = false

	if partTracks == nil {
		return nil
	}

	part := &fmp4.Part{
		SequenceNumber: f.nextSequenceNumber,
		Tracks:         partTracks,
	}
	f.nextSequenceNumber++

	var buf seekablebuffer.Buffer
	err := part.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = f.fi.Write(buf.Bytes())
	return err
}

func (f *formatFMP4) finalize() error {
	for _, track := range f.tracks {
		if track.nextSample == nil {
			continue
		}

		sample := track.nextSample
		track.nextSample = nil

		if c := track.t.sampleCount(len(sample.Payload)); c != 0 {
			sample.Duration = c
		} else if track.partTrack != nil && len(track.partTrack.Samples) != 0 {
			sample.Duration = track.partTrack.Samples[len(track.partTrack.Samples)-1].Duration
		}

		f.appendToPart(track, sample)
	}

	err := f.writePart()

	f.m.Log(logger.Debug, "%d fragments written", f.nextSequenceNumber)

	err2 := f.fi.Close()
	if err == nil {
		err = err2
	}
	f.fi = nil

	return err
}

func (f *formatFMP4) abort() {
	if f.fi != nil {
		f.fi.Close()
		f.fi = nil
	}
	os.Remove(f.m.Path) //nolint:errcheck
}

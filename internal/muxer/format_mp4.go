package muxer

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// payloadMP4 converts a payload into the layout expected by MP4 containers.
func payloadMP4(t *muxerTrack, data []byte) ([]byte, error) {
	if t.format.MIME != codec.MIMEH264 {
		return data, nil
	}

	var au h264.AnnexB
	err := au.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	return h264.AVCC(au).Marshal()
}

type formatMP4Track struct {
	pmp4.Track
	t       *muxerTrack
	lastDTS int64
}

// formatMP4 writes a progressive MP4 file.
// Payloads are spooled into a temporary file and the header is written on finalization.
type formatMP4 struct {
	m *Muxer

	spool     *os.File
	spoolSize int64
	tracks    []*formatMP4Track
}

func (f *formatMP4) initialize() error {
	for _, t := range f.m.sortedTracks() {
		f.tracks = append(f.tracks, &formatMP4Track{
			Track: pmp4.Track{
				ID:        t.id(),
				TimeScale: t.format.TimeScale(),
				Codec:     t.format.Codec,
			},
			t: t,
		})
	}

	var err error
	f.spool, err = os.CreateTemp(filepath.Dir(f.m.Path), ".camrecorder-*.tmp")
	return err
}

func (f *formatMP4) writeSample(t *muxerTrack, pts int64, pkt *codec.EncodedPacket) error {
	track := f.tracks[t.binding.Index]

	payload, err := payloadMP4(t, pkt.Data)
	if err != nil {
		return err
	}

	offset := f.spoolSize
	size := len(payload)

	_, err = f.spool.Write(payload)
	if err != nil {
		return err
	}
	f.spoolSize += int64(size)

	dts := multiplyAndDivide(pts, int64(track.TimeScale), 1000000)

	if len(track.Samples) == 0 {
		track.TimeOffset = int32(dts)
	} else {
		duration := dts - track.lastDTS
		if duration < 0 {
			duration = 0
		}
		track.Samples[len(track.Samples)-1].Duration = uint32(duration)
	}

	spool := f.spool

	track.Samples = append(track.Samples, &pmp4.Sample{
		IsNonSyncSample: t.binding.Track == codec.KindVideo && !pkt.IsKeyFrame(),
		PayloadSize:     uint32(size),
		GetPayload: func() ([]byte, error) {
			buf := make([]byte, size)
			_, err := spool.ReadAt(buf, offset)
			return buf, err
		},
	})
	track.lastDTS = dts

	return nil
}

func (f *formatMP4) finalize() error {
	var h pmp4.Presentation

	for _, track := range f.tracks {
		n := len(track.Samples)

		// a track without samples cannot be described in the header.
		if n == 0 {
			f.m.Log(logger.Warn, "%v track has no samples, omitting it", track.t.binding.Track)
			continue
		}

		last := track.Samples[n-1]
		if c := track.t.sampleCount(int(last.PayloadSize)); c != 0 {
			last.Duration = c
		} else if n >= 2 {
			last.Duration = track.Samples[n-2].Duration
		}

		h.Tracks = append(h.Tracks, &track.Track)
	}

	fi, err := os.Create(f.m.Path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(fi)

	err = h.Marshal(bw)
	if err == nil {
		err = bw.Flush()
	}

	err2 := fi.Close()
	if err == nil {
		err = err2
	}

	f.removeSpool()

	return err
}

func (f *formatMP4) abort() {
	f.removeSpool()
	os.Remove(f.m.Path) //nolint:errcheck
}

func (f *formatMP4) removeSpool() {
	if f.spool == nil {
		return
	}

	f.spool.Close()
	err := os.Remove(f.spool.Name())
	if err != nil {
		f.m.Log(logger.Warn, "unable to remove spool file: %v", err)
	}
	f.spool = nil
}

package muxer

import (
	"bufio"
	"fmt"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/bluenviron/camrecorder/internal/codec"
)

const (
	mpegtsBufferSize = 64 * 1024
)

// formatMPEGTS writes a MPEG-TS file.
type formatMPEGTS struct {
	m *Muxer

	fi     *os.File
	bw     *bufio.Writer
	mw     *mpegts.Writer
	tracks []*mpegts.Track
}

func (f *formatMPEGTS) initialize() error {
	for _, t := range f.m.sortedTracks() {
		var tc mpegts.Codec

		switch c := t.format.Codec.(type) {
		case *mp4.CodecH264:
			tc = &mpegts.CodecH264{}

		case *mp4.CodecMPEG4Audio:
			tc = &mpegts.CodecMPEG4Audio{
				Config: c.Config,
			}

		default:
			return fmt.Errorf("%w: %s in MPEG-TS", ErrUnsupportedCodec, t.format.MIME)
		}

		f.tracks = append(f.tracks, &mpegts.Track{
			Codec: tc,
		})
	}

	fi, err := os.Create(f.m.Path)
	if err != nil {
		return err
	}

	f.bw = bufio.NewWriterSize(fi, mpegtsBufferSize)
	f.mw = &mpegts.Writer{W: f.bw, Tracks: f.tracks}

	err = f.mw.Initialize()
	if err != nil {
		fi.Close()
		os.Remove(f.m.Path) //nolint:errcheck
		return err
	}

	f.fi = fi
	return nil
}

func (f *formatMPEGTS) writeSample(t *muxerTrack, pts int64, pkt *codec.EncodedPacket) error {
	track := f.tracks[t.binding.Index]

	// MPEG-TS timestamps have a 90khz clock rate.
	pts = multiplyAndDivide(pts, 90000, 1000000)

	switch track.Codec.(type) {
	case *mpegts.CodecH264:
		var au h264.AnnexB
		err := au.Unmarshal(pkt.Data)
		if err != nil {
			return err
		}

		return f.mw.WriteH264(track, pts, pts, au)

	default:
		return f.mw.WriteMPEG4Audio(track, pts, [][]byte{pkt.Data})
	}
}

func (f *formatMPEGTS) finalize() error {
	err := f.bw.Flush()

	err2 := f.fi.Close()
	if err == nil {
		err = err2
	}
	f.fi = nil

	return err
}

func (f *formatMPEGTS) abort() {
	if f.fi != nil {
		f.fi.Close()
		f.fi = nil
	}
	os.Remove(f.m.Path) //nolint:errcheck
}

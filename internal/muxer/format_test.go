package muxer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gomp4 "github.com/abema/go-mp4"
	"github.com/asticode/go-astits"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/test"
)

var (
	testIDR    = []byte{0, 0, 0, 1, 0x65, 0x88, 0x84}
	testNonIDR = []byte{0, 0, 0, 1, 0x41, 0x9a}
)

func sampleDeltas(stts *gomp4.Stts) []uint32 {
	var out []uint32
	for _, e := range stts.Entries {
		for i := uint32(0); i < e.SampleCount; i++ {
			out = append(out, e.SampleDelta)
		}
	}
	return out
}

func startMuxer(t *testing.T, format conf.RecordFormat, tracks map[codec.Kind]*codec.Format) *Muxer {
	ext := format.Extension()

	m := &Muxer{
		Path:   filepath.Join(t.TempDir(), "out"+ext),
		Format: format,
		Parent: test.NilLogger,
	}

	for _, k := range []codec.Kind{codec.KindVideo, codec.KindAudio} {
		if _, ok := tracks[k]; ok {
			m.Tracks = append(m.Tracks, k)
		}
	}

	err := m.Initialize()
	require.NoError(t, err)

	for _, k := range m.Tracks {
		err = m.RegisterFormat(k, tracks[k])
		require.NoError(t, err)
	}

	require.True(t, m.Started())
	return m
}

func writeVideo(t *testing.T, m *Muxer, n int, gop int) {
	for i := 0; i < n; i++ {
		pkt := &codec.EncodedPacket{
			PTS: int64(i) * 100000,
		}
		if i%gop == 0 {
			pkt.Data = testIDR
			pkt.Flags = codec.FlagKeyFrame
		} else {
			pkt.Data = testNonIDR
		}

		err := m.WriteSample(codec.KindVideo, pkt)
		require.NoError(t, err)
	}
}

func TestFormatMP4(t *testing.T) {
	m := startMuxer(t, conf.RecordFormatMP4, map[codec.Kind]*codec.Format{
		codec.KindVideo: test.FormatH264,
		codec.KindAudio: test.FormatMPEG4Audio,
	})

	writeVideo(t, m, 3, 2)

	for i := 0; i < 2; i++ {
		err := m.WriteSample(codec.KindAudio, &codec.EncodedPacket{
			Data:  []byte{1, 2, 3, 4},
			PTS:   int64(i) * 23220,
			Flags: codec.FlagKeyFrame,
		})
		require.NoError(t, err)
	}

	ok, err := m.Finish()
	require.NoError(t, err)
	require.True(t, ok)

	buf, err := os.ReadFile(m.Path)
	require.NoError(t, err)

	boxes, err := gomp4.ExtractBoxWithPayload(bytes.NewReader(buf), nil,
		gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd()})
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	require.Equal(t, uint32(1), boxes[0].Payload.(*gomp4.Tkhd).TrackID)
	require.Equal(t, uint32(2), boxes[1].Payload.(*gomp4.Tkhd).TrackID)

	stbl := func(typ gomp4.BoxType) []*gomp4.BoxInfoWithPayload {
		boxes, err2 := gomp4.ExtractBoxWithPayload(bytes.NewReader(buf), nil, gomp4.BoxPath{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
			gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), typ,
		})
		require.NoError(t, err2)
		require.Len(t, boxes, 2)
		return boxes
	}

	mdhd, err := gomp4.ExtractBoxWithPayload(bytes.NewReader(buf), nil,
		gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()})
	require.NoError(t, err)
	require.Equal(t, uint32(90000), mdhd[0].Payload.(*gomp4.Mdhd).Timescale)
	require.Equal(t, uint32(44100), mdhd[1].Payload.(*gomp4.Mdhd).Timescale)

	stts := stbl(gomp4.BoxTypeStts())
	require.Equal(t, []uint32{9000, 9000, 9000}, sampleDeltas(stts[0].Payload.(*gomp4.Stts)))
	require.Equal(t, []uint32{1024, 1024}, sampleDeltas(stts[1].Payload.(*gomp4.Stts)))

	stsz := stbl(gomp4.BoxTypeStsz())
	require.Equal(t, []uint32{7, 6, 7}, stsz[0].Payload.(*gomp4.Stsz).EntrySize)

	stss, err := gomp4.ExtractBoxWithPayload(bytes.NewReader(buf), nil, gomp4.BoxPath{
		gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
		gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStss(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, stss)
	require.Equal(t, []uint32{1, 3}, stss[0].Payload.(*gomp4.Stss).SampleNumber)

	entries, err := os.ReadDir(filepath.Dir(m.Path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFormatFMP4(t *testing.T) {
	m := startMuxer(t, conf.RecordFormatFMP4, map[codec.Kind]*codec.Format{
		codec.KindVideo: test.FormatH264,
	})

	writeVideo(t, m, 25, 10)

	ok, err := m.Finish()
	require.NoError(t, err)
	require.True(t, ok)

	buf, err := os.ReadFile(m.Path)
	require.NoError(t, err)

	moov, err := gomp4.ExtractBox(bytes.NewReader(buf), nil, gomp4.BoxPath{gomp4.BoxTypeMoov()})
	require.NoError(t, err)
	require.Len(t, moov, 1)

	moof, err := gomp4.ExtractBox(bytes.NewReader(buf), nil, gomp4.BoxPath{gomp4.BoxTypeMoof()})
	require.NoError(t, err)
	require.Len(t, moof, 3)
}

func TestFormatMPEGTS(t *testing.T) {
	m := startMuxer(t, conf.RecordFormatMPEGTS, map[codec.Kind]*codec.Format{
		codec.KindVideo: test.FormatH264,
		codec.KindAudio: test.FormatMPEG4Audio,
	})

	writeVideo(t, m, 3, 2)

	for i := 0; i < 2; i++ {
		err := m.WriteSample(codec.KindAudio, &codec.EncodedPacket{
			Data: []byte{1, 2, 3, 4},
			PTS:  int64(i) * 23220,
		})
		require.NoError(t, err)
	}

	ok, err := m.Finish()
	require.NoError(t, err)
	require.True(t, ok)

	buf, err := os.ReadFile(m.Path)
	require.NoError(t, err)

	dem := astits.NewDemuxer(context.Background(), bytes.NewReader(buf),
		astits.DemuxerOptPacketSize(188))

	var streamTypes []astits.StreamType
	videoPID := uint16(0)
	videoPES := 0

	for {
		data, err := dem.NextData()
		if errors.Is(err, astits.ErrNoMorePackets) {
			break
		}
		require.NoError(t, err)

		if data.PMT != nil && streamTypes == nil {
			for _, es := range data.PMT.ElementaryStreams {
				streamTypes = append(streamTypes, es.StreamType)
			}
			videoPID = data.PMT.ElementaryStreams[0].ElementaryPID
		}

		if data.PES != nil && data.PID == videoPID {
			videoPES++
		}
	}

	require.Equal(t, []astits.StreamType{
		astits.StreamTypeH264Video,
		astits.StreamTypeAACAudio,
	}, streamTypes)
	require.GreaterOrEqual(t, videoPES, 2)
}

func TestFormatMPEGTSUnsupportedCodec(t *testing.T) {
	m := &Muxer{
		Path:   filepath.Join(t.TempDir(), "out.ts"),
		Format: conf.RecordFormatMPEGTS,
		Tracks: []codec.Kind{codec.KindVideo, codec.KindAudio},
		Parent: test.NilLogger,
	}

	err := m.Initialize()
	require.NoError(t, err)
	defer m.Finish() //nolint:errcheck

	err = m.RegisterFormat(codec.KindVideo, test.FormatH264)
	require.NoError(t, err)

	err = m.RegisterFormat(codec.KindAudio, test.FormatLPCM)
	require.ErrorIs(t, err, ErrUnsupportedCodec)
	require.False(t, m.Started())
}

func TestMuxerWriteThroughFormats(t *testing.T) {
	for _, ca := range []struct {
		name   string
		format conf.RecordFormat
	}{
		{"mp4", conf.RecordFormatMP4},
		{"fmp4", conf.RecordFormatFMP4},
		{"mpegts", conf.RecordFormatMPEGTS},
	} {
		t.Run(ca.name, func(t *testing.T) {
			format := ca.format
			m := &Muxer{
				Path:   filepath.Join(t.TempDir(), "out"+format.Extension()),
				Format: format,
				Tracks: []codec.Kind{codec.KindVideo, codec.KindAudio},
				Parent: test.NilLogger,
			}

			err := m.Initialize()
			require.NoError(t, err)

			// audio first, bindings must not depend on it
			err = m.RegisterFormat(codec.KindAudio, test.FormatMPEG4Audio)
			require.NoError(t, err)
			require.False(t, m.Started())

			err = m.RegisterFormat(codec.KindVideo, test.FormatH264)
			require.NoError(t, err)
			require.True(t, m.Started())
			require.Equal(t, []TrackBinding{
				{Track: codec.KindVideo, Index: 0},
				{Track: codec.KindAudio, Index: 1},
			}, m.Bindings())

			err = m.WriteSample(codec.KindVideo, &codec.EncodedPacket{
				Data:  testIDR,
				PTS:   0,
				Flags: codec.FlagKeyFrame,
			})
			require.NoError(t, err)

			err = m.WriteSample(codec.KindAudio, &codec.EncodedPacket{
				Data:  []byte{1, 2, 3, 4},
				PTS:   0,
				Flags: codec.FlagKeyFrame,
			})
			require.NoError(t, err)

			err = m.WriteSample(codec.KindVideo, &codec.EncodedPacket{
				Data: testNonIDR,
				PTS:  33333,
			})
			require.NoError(t, err)

			require.Equal(t, uint64(3), m.Written())

			ok, err := m.Finish()
			require.NoError(t, err)
			require.True(t, ok)

			fi, err := os.Stat(m.Path)
			require.NoError(t, err)
			require.NotZero(t, fi.Size())
		})
	}
}

func TestFormatMP4TrackWithoutSamples(t *testing.T) {
	m := startMuxer(t, conf.RecordFormatMP4, map[codec.Kind]*codec.Format{
		codec.KindVideo: test.FormatH264,
		codec.KindAudio: test.FormatMPEG4Audio,
	})

	writeVideo(t, m, 2, 2)

	ok, err := m.Finish()
	require.NoError(t, err)
	require.True(t, ok)

	buf, err := os.ReadFile(m.Path)
	require.NoError(t, err)

	boxes, err := gomp4.ExtractBoxWithPayload(bytes.NewReader(buf), nil,
		gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd()})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	require.Equal(t, uint32(1), boxes[0].Payload.(*gomp4.Tkhd).TrackID)
}

package codec

import (
	"reflect"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// Kind is the kind of a track.
type Kind int

// track kinds.
const (
	KindVideo Kind = iota
	KindAudio
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// MIME types.
const (
	MIMEH264       = "video/avc"
	MIMEMPEG4Audio = "audio/mp4a-latm"
	MIMELPCM       = "audio/raw"
)

// Format is the output format of an encoder.
// It is produced once per track and never changes afterwards.
type Format struct {
	Kind         Kind
	MIME         string
	Width        int
	Height       int
	SampleRate   int
	ChannelCount int
	Codec        mp4.Codec
}

// Equal returns whether two formats describe the same track.
func (f *Format) Equal(other *Format) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Kind == other.Kind &&
		f.MIME == other.MIME &&
		f.Width == other.Width &&
		f.Height == other.Height &&
		f.SampleRate == other.SampleRate &&
		f.ChannelCount == other.ChannelCount &&
		reflect.DeepEqual(f.Codec, other.Codec)
}

// TimeScale returns the time scale that suits the track.
func (f *Format) TimeScale() uint32 {
	if f.Kind == KindAudio && f.SampleRate > 0 {
		return uint32(f.SampleRate)
	}
	return 90000
}

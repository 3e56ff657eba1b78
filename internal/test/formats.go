package test

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/camrecorder/internal/codec"
)

// SPS is a test H264 SPS.
var SPS = []byte{ // 1920x1080 baseline
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
}

// PPS is a test H264 PPS.
var PPS = []byte{0x08, 0x06, 0x07, 0x08}

// FormatH264 is a test H264 format.
var FormatH264 = &codec.Format{
	Kind:   codec.KindVideo,
	MIME:   codec.MIMEH264,
	Width:  1280,
	Height: 720,
	Codec: &mp4.CodecH264{
		SPS: SPS,
		PPS: PPS,
	},
}

// FormatMPEG4Audio is a test MPEG-4 audio format.
var FormatMPEG4Audio = &codec.Format{
	Kind:         codec.KindAudio,
	MIME:         codec.MIMEMPEG4Audio,
	SampleRate:   44100,
	ChannelCount: 1,
	Codec: &mp4.CodecMPEG4Audio{
		Config: mpeg4audio.AudioSpecificConfig{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   44100,
			ChannelCount: 1,
		},
	},
}

// FormatLPCM is a test LPCM format.
var FormatLPCM = &codec.Format{
	Kind:         codec.KindAudio,
	MIME:         codec.MIMELPCM,
	SampleRate:   44100,
	ChannelCount: 1,
	Codec: &mp4.CodecLPCM{
		LittleEndian: false,
		BitDepth:     16,
		SampleRate:   44100,
		ChannelCount: 1,
	},
}

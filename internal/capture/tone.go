package capture

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	defaultToneFrequency = 440
	defaultToneAmplitude = 0.25
)

// ToneSource generates a sine wave in real time.
type ToneSource struct {
	SampleRate   int
	ChannelCount int
	Frequency    float64
	Amplitude    float64
	Now          func() time.Time

	start    time.Time
	produced int64
}

// Initialize initializes ToneSource.
func (s *ToneSource) Initialize() {
	if s.Frequency == 0 {
		s.Frequency = defaultToneFrequency
	}
	if s.Amplitude == 0 {
		s.Amplitude = defaultToneAmplitude
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	s.start = s.Now()
}

// Close implements PCMSource.
func (s *ToneSource) Close() {
}

// Read implements PCMSource.
// It returns the samples that became due since the previous call.
func (s *ToneSource) Read(p []byte) (int, error) {
	frameSize := 2 * s.ChannelCount

	due := int64(s.Now().Sub(s.start)) * int64(s.SampleRate) / int64(time.Second)
	n := due - s.produced
	if maxN := int64(len(p) / frameSize); n > maxN {
		n = maxN
	}
	if n <= 0 {
		return 0, nil
	}

	pos := 0
	for i := int64(0); i < n; i++ {
		t := float64(s.produced+i) / float64(s.SampleRate)
		v := int16(math.Sin(2*math.Pi*s.Frequency*t) * s.Amplitude * math.MaxInt16)

		for c := 0; c < s.ChannelCount; c++ {
			binary.LittleEndian.PutUint16(p[pos:], uint16(v))
			pos += 2
		}
	}

	s.produced += n
	return pos, nil
}

package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bluenviron/camrecorder/internal/logger"
)

// VideoFactory allocates a video encoder.
type VideoFactory func(parent logger.Writer) VideoEncoder

// AudioFactory allocates an audio encoder.
type AudioFactory func(parent logger.Writer) AudioEncoder

var registryMutex sync.RWMutex

var (
	videoFactories = make(map[string]VideoFactory)
	audioFactories = make(map[string]AudioFactory)
)

// RegisterVideo makes a video encoder available by name.
func RegisterVideo(name string, f VideoFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	videoFactories[name] = f
}

// RegisterAudio makes an audio encoder available by name.
func RegisterAudio(name string, f AudioFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	audioFactories[name] = f
}

// NewVideoEncoder allocates a registered video encoder.
func NewVideoEncoder(name string, parent logger.Writer) (VideoEncoder, error) {
	registryMutex.RLock()
	f, ok := videoFactories[name]
	registryMutex.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: video encoder '%s'", ErrUnknownEncoder, name)
	}
	return f(parent), nil
}

// NewAudioEncoder allocates a registered audio encoder.
func NewAudioEncoder(name string, parent logger.Writer) (AudioEncoder, error) {
	registryMutex.RLock()
	f, ok := audioFactories[name]
	registryMutex.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: audio encoder '%s'", ErrUnknownEncoder, name)
	}
	return f(parent), nil
}

// Names returns the names of registered video and audio encoders.
func Names() ([]string, []string) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	var video []string
	for n := range videoFactories {
		video = append(video, n)
	}
	sort.Strings(video)

	var audio []string
	for n := range audioFactories {
		audio = append(audio, n)
	}
	sort.Strings(audio)

	return video, audio
}

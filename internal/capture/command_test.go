//go:build !windows

package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/externalcmd"
	"github.com/bluenviron/camrecorder/internal/test"
)

func TestCommandSource(t *testing.T) {
	pool := &externalcmd.Pool{}
	pool.Initialize()
	defer pool.Close()

	s := &CommandSource{
		Command:      "printf 'rate=$CAMREC_AUDIO_RATE channels=$CAMREC_AUDIO_CHANNELS'",
		SampleRate:   44100,
		ChannelCount: 2,
		Pool:         pool,
		Parent:       test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	var out []byte
	buf := make([]byte, 7)

	for i := 0; i < 100 && len(out) < len("rate=44100 channels=2"); i++ {
		n, err := s.Read(buf)
		require.NoError(t, err)
		out = append(out, buf[:n]...)

		if n == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}

	require.Equal(t, "rate=44100 channels=2", string(out))
}

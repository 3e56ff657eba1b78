// Package capture contains audio and video capture sources.
package capture

import (
	"io"
)

// PCMSource is a source of interleaved signed 16-bit little-endian PCM.
// Read never blocks for long: a short or zero read means that nothing is available yet.
type PCMSource interface {
	io.Reader
	Close()
}

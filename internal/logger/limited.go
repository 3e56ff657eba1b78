package logger

import (
	"sync"
	"time"
)

// Limited is a Writer that forwards at most one entry per interval.
// It is used for messages that would otherwise flood the log, like dropped frames.
type Limited struct {
	Parent   Writer
	Interval time.Duration

	mutex       sync.Mutex
	lastPrinted time.Time
}

// Log implements Writer.
func (l *Limited) Log(level Level, format string, args ...any) {
	now := time.Now()
	l.mutex.Lock()
	if now.Sub(l.lastPrinted) >= l.Interval {
		l.lastPrinted = now
		l.Parent.Log(level, format, args...)
	}
	l.mutex.Unlock()
}

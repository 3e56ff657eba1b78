package logger

import "time"

// Writer is an object that provides a log method.
type Writer interface {
	Log(Level, string, ...any)
}

type destination interface {
	log(time.Time, Level, string, ...any)
	close()
}

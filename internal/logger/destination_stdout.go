package logger

import (
	"bytes"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStdout struct {
	structured bool
	useColor   bool
	stdout     io.Writer
	buf        bytes.Buffer
}

func newDestionationStdout(structured bool) destination {
	return &destinationStdout{
		structured: structured,
		useColor:   !structured && term.IsTerminal(int(os.Stdout.Fd())),
		stdout:     os.Stdout,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...any) {
	writePlainOrStructured(&d.buf, d.structured, d.useColor, t, level, format, args)
	d.stdout.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}

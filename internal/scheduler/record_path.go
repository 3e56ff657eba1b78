package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/camrecorder/internal/conf"
)

func leadingZeros(v int, size int) string {
	out := strconv.FormatInt(int64(v), 10)
	if len(out) >= size {
		return out
	}

	return strings.Repeat("0", size-len(out)) + out
}

// recordPath is the path of a recording.
type recordPath struct {
	ID    uuid.UUID
	Start time.Time
}

// encode fills the placeholders of format and appends the extension of the container.
func (p recordPath) encode(format string, recordFormat conf.RecordFormat) string {
	format = strings.ReplaceAll(format, "%id", p.ID.String())
	format = strings.ReplaceAll(format, "%Y", strconv.FormatInt(int64(p.Start.Year()), 10))
	format = strings.ReplaceAll(format, "%m", leadingZeros(int(p.Start.Month()), 2))
	format = strings.ReplaceAll(format, "%d", leadingZeros(p.Start.Day(), 2))
	format = strings.ReplaceAll(format, "%H", leadingZeros(p.Start.Hour(), 2))
	format = strings.ReplaceAll(format, "%M", leadingZeros(p.Start.Minute(), 2))
	format = strings.ReplaceAll(format, "%S", leadingZeros(p.Start.Second(), 2))
	format = strings.ReplaceAll(format, "%f", leadingZeros(p.Start.Nanosecond()/1000, 6))
	format = strings.ReplaceAll(format, "%s", strconv.FormatInt(p.Start.Unix(), 10))
	return format + recordFormat.Extension()
}

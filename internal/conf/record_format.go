package conf

import (
	"encoding/json"
	"fmt"
)

// RecordFormat is the recordFormat parameter.
type RecordFormat int

// supported values.
const (
	RecordFormatMP4 RecordFormat = iota
	RecordFormatFMP4
	RecordFormatMPEGTS
)

// Extension returns the file extension of the format.
func (d RecordFormat) Extension() string {
	if d == RecordFormatMPEGTS {
		return ".ts"
	}
	return ".mp4"
}

// MarshalJSON implements json.Marshaler.
func (d RecordFormat) MarshalJSON() ([]byte, error) {
	var out string

	switch d {
	case RecordFormatMP4:
		out = "mp4"

	case RecordFormatFMP4:
		out = "fmp4"

	case RecordFormatMPEGTS:
		out = "mpegts"

	default:
		return nil, fmt.Errorf("invalid record format: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *RecordFormat) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "mp4":
		*d = RecordFormatMP4

	case "fmp4":
		*d = RecordFormatFMP4

	case "mpegts":
		*d = RecordFormatMPEGTS

	default:
		return fmt.Errorf("invalid record format: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *RecordFormat) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}

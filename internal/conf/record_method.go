package conf

import (
	"encoding/json"
	"fmt"
)

// RecordMethod is the recordMethod parameter.
type RecordMethod int

// supported values.
const (
	// the scene is drawn once on the display and once on the encoder surface.
	RecordMethodDrawTwice RecordMethod = iota

	// the scene is drawn once offscreen, then copied to both surfaces.
	RecordMethodOffscreen
)

// MarshalJSON implements json.Marshaler.
func (d RecordMethod) MarshalJSON() ([]byte, error) {
	var out string

	switch d {
	case RecordMethodDrawTwice:
		out = "drawTwice"

	case RecordMethodOffscreen:
		out = "offscreen"

	default:
		return nil, fmt.Errorf("invalid record method: %d", int(d))
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *RecordMethod) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "drawTwice":
		*d = RecordMethodDrawTwice

	case "offscreen":
		*d = RecordMethodOffscreen

	default:
		return fmt.Errorf("invalid record method: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *RecordMethod) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}

// String implements fmt.Stringer.
func (d RecordMethod) String() string {
	switch d {
	case RecordMethodDrawTwice:
		return "drawTwice"

	case RecordMethodOffscreen:
		return "offscreen"
	}
	return "unknown"
}

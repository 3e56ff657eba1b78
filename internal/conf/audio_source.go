package conf

import (
	"encoding/json"
	"fmt"
)

// AudioSource is the audioSource parameter.
type AudioSource int

// supported values.
const (
	AudioSourceNone AudioSource = iota
	AudioSourceTone
	AudioSourceCommand
)

// MarshalJSON implements json.Marshaler.
func (d AudioSource) MarshalJSON() ([]byte, error) {
	var out string

	switch d {
	case AudioSourceNone:
		out = "none"

	case AudioSourceTone:
		out = "tone"

	case AudioSourceCommand:
		out = "command"

	default:
		return nil, fmt.Errorf("invalid audio source: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *AudioSource) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "none":
		*d = AudioSourceNone

	case "tone":
		*d = AudioSourceTone

	case "command":
		*d = AudioSourceCommand

	default:
		return fmt.Errorf("invalid audio source: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *AudioSource) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}

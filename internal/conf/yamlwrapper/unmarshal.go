// Package yamlwrapper contains a YAML unmarshaler.
package yamlwrapper

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/bluenviron/camrecorder/internal/conf/jsonwrapper"
)

func convertKeys(i any) (any, error) {
	switch x := i.(type) {
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string keys are not supported (%v)", k)
			}

			var err error
			out[ks], err = convertKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case []any:
		out := make([]any, len(x))
		for j, v := range x {
			var err error
			out[j], err = convertKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	return i, nil
}

// Unmarshal loads YAML into a struct that is annotated with JSON tags.
func Unmarshal(buf []byte, dest any) error {
	// UnmarshalStrict rejects duplicate keys.
	var temp any
	err := yaml.UnmarshalStrict(buf, &temp)
	if err != nil {
		return err
	}

	// an empty document decodes to nil
	if temp == nil {
		temp = map[string]any{}
	}

	temp, err = convertKeys(temp)
	if err != nil {
		return err
	}

	buf, err = json.Marshal(temp)
	if err != nil {
		return err
	}

	return jsonwrapper.Unmarshal(buf, dest)
}

package yamlwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Width  int      `json:"width"`
	Format string   `json:"format"`
	Hooks  []string `json:"hooks"`
}

func TestUnmarshal(t *testing.T) {
	var dest testStruct
	err := Unmarshal([]byte("width: 1280\nformat: mp4\nhooks: [a, b]\n"), &dest)
	require.NoError(t, err)
	require.Equal(t, testStruct{
		Width:  1280,
		Format: "mp4",
		Hooks:  []string{"a", "b"},
	}, dest)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		yaml string
		err  string
	}{
		{
			"duplicate key",
			"width: 1\nwidth: 2\n",
			"already set in map",
		},
		{
			"unknown field",
			"height: 2\n",
			"json: unknown field \"height\"",
		},
		{
			"integer key",
			"1: 2\n",
			"non-string keys are not supported (1)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var dest testStruct
			err := Unmarshal([]byte(ca.yaml), &dest)
			require.Error(t, err)
			require.Contains(t, err.Error(), ca.err)
		})
	}
}

package jsonwrapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

func TestUnmarshalDisallowUnknownFields(t *testing.T) {
	var dest testStruct
	err := Decode(strings.NewReader(`{"name": "a", "other": 1}`), &dest)
	require.EqualError(t, err, "json: unknown field \"other\"")
}

func TestUnmarshalReplaceSlice(t *testing.T) {
	dest := testStruct{
		Values: []string{"x", "y", "z"},
	}
	err := Unmarshal([]byte(`{"values": ["a"]}`), &dest)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, dest.Values)
}

func TestUnmarshalNilSlice(t *testing.T) {
	var dest testStruct
	err := Unmarshal([]byte(`{"values": null}`), &dest)
	require.EqualError(t, err, "cannot set slice 'values' to nil")
}

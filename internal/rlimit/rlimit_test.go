//go:build linux

package rlimit

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRaise(t *testing.T) {
	err := Raise()
	require.NoError(t, err)

	var rlim unix.Rlimit
	err = unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim)
	require.NoError(t, err)
	require.Equal(t, rlim.Max, rlim.Cur)
}

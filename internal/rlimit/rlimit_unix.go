//go:build !windows

// Package rlimit contains a function to raise the limit of open files.
package rlimit

import (
	"golang.org/x/sys/unix"
)

// Raise raises the soft limit of open file descriptors up to the hard limit.
func Raise() error {
	var rlim unix.Rlimit
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim)
	if err != nil {
		return err
	}

	if rlim.Cur >= rlim.Max {
		return nil
	}

	rlim.Cur = rlim.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim)
}

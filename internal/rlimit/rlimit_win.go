//go:build windows

// Package rlimit contains a function to raise the limit of open files.
package rlimit

// Raise is a no-op on Windows.
func Raise() error {
	return nil
}

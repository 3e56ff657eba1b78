// Package externalcmd allows to launch external commands.
package externalcmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	restartPause = 5 * time.Second
)

var errTerminated = errors.New("terminated")

// OnExitFunc is the prototype of OnExit.
type OnExitFunc func(error)

// Environment is a Cmd environment.
type Environment map[string]string

// Cmd is an external command.
type Cmd struct {
	Pool    *Pool
	Cmdstr  string
	Restart bool
	Env     Environment
	Stdout  io.Writer
	OnExit  OnExitFunc

	cmdstr    string
	terminate chan struct{}
}

// Initialize initializes Cmd and starts the command.
func (e *Cmd) Initialize() {
	// replace variables in both Linux and Windows, in order to allow using the
	// same commands on both of them.
	e.cmdstr = os.Expand(e.Cmdstr, func(variable string) string {
		if value, ok := e.Env[variable]; ok {
			return value
		}
		return os.Getenv(variable)
	})

	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.OnExit == nil {
		e.OnExit = func(_ error) {}
	}

	e.terminate = make(chan struct{})

	e.Pool.wg.Add(1)

	go e.run()
}

// Close closes the command. It doesn't wait for the command to exit.
func (e *Cmd) Close() {
	close(e.terminate)
}

func (e *Cmd) run() {
	defer e.Pool.wg.Done()

	env := append([]string(nil), os.Environ()...)
	for key, val := range e.Env {
		env = append(env, key+"="+val)
	}

	for {
		err := e.runOSSpecific(env)
		if errors.Is(err, errTerminated) {
			return
		}

		if !e.Restart {
			e.OnExit(err)
			return
		}

		if err != nil {
			e.OnExit(err)
		} else {
			e.OnExit(fmt.Errorf("command exited with code 0"))
		}

		select {
		case <-time.After(restartPause):
		case <-e.terminate:
			return
		}
	}
}

// Package httpp contains the HTTP listener shared by the API, metrics and pprof endpoints.
package httpp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bluenviron/camrecorder/internal/logger"
)

const (
	unixPrefix  = "unix://"
	idleTimeout = 30 * time.Second
)

// splitAddress returns the network and the address to listen on.
// "unix:///path" selects a unix socket, anything else is TCP.
func splitAddress(address string) (string, string) {
	if strings.HasPrefix(address, unixPrefix) {
		return "unix", address[len(unixPrefix):]
	}
	return "tcp", address
}

// errorLogWriter routes errors of the standard HTTP server,
// like TLS handshake or malformed request errors, to debug logs.
type errorLogWriter struct {
	parent logger.Writer
}

func (w *errorLogWriter) Write(p []byte) (int, error) {
	if w.parent != nil {
		w.parent.Log(logger.Debug, "%s", strings.TrimSuffix(string(p), "\n"))
	}
	return len(p), nil
}

// Server is an HTTP listener on a TCP address or unix socket.
// Requests with a malformed path are rejected and a panic inside
// the handler terminates the process.
type Server struct {
	Address     string
	ReadTimeout time.Duration
	Handler     http.Handler
	Parent      logger.Writer

	network    string
	socketPath string
	ln         net.Listener
	inner      *http.Server
	done       chan struct{}
}

// Initialize initializes a Server.
func (s *Server) Initialize() error {
	if s.ReadTimeout == 0 {
		return fmt.Errorf("invalid ReadTimeout")
	}

	err := s.listen()
	if err != nil {
		return err
	}

	s.inner = &http.Server{
		Handler: &handlerExitOnPanic{&handlerFilterRequests{s.Handler}},

		// applied while reading a request
		ReadTimeout: s.ReadTimeout,

		// applied between requests of a keep-alive connection
		IdleTimeout: idleTimeout,

		ErrorLog: log.New(&errorLogWriter{s.Parent}, "", 0),
	}

	s.done = make(chan struct{})
	go s.run()

	return nil
}

func (s *Server) listen() error {
	var address string
	s.network, address = splitAddress(s.Address)

	if s.network == "unix" {
		// a socket left over by a previous run would make Listen fail.
		os.Remove(address)
		s.socketPath = address
	}

	var err error
	s.ln, err = net.Listen(s.network, address)
	if err != nil {
		return err
	}

	if s.network == "unix" {
		os.Chmod(address, 0o755) //nolint:errcheck
	}

	return nil
}

func (s *Server) run() {
	defer close(s.done)

	err := s.inner.Serve(s.ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && s.Parent != nil {
		s.Parent.Log(logger.Error, "HTTP server stopped: %v", err)
	}
}

// Close stops the listener, closes active connections
// and waits for the serving routine to return.
func (s *Server) Close() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	ctxCancel()
	s.inner.Shutdown(ctx) //nolint:errcheck
	s.ln.Close()          // in case Shutdown() is called before Serve()
	<-s.done

	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

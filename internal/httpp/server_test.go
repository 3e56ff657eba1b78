package httpp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/test"
)

func TestFilterEmptyPath(t *testing.T) {
	s := &Server{
		Address:     "localhost:4555",
		ReadTimeout: 10 * time.Second,
		Handler:     http.NotFoundHandler(),
		Parent:      test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	conn, err := net.Dial("tcp", "localhost:4555")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("OPTIONS http://localhost HTTP/1.1\n" +
		"Host: localhost:4555\n" +
		"User-Agent: Go-http-client/1.1\n\n"))
	require.NoError(t, err)

	buf := make([]byte, 12)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 400", string(buf))
}

func TestMiddlewares(t *testing.T) {
	var mutex sync.Mutex
	var logged []string

	router := gin.New()
	router.Use(MiddlewareServerHeader)
	router.Use(MiddlewareLogger(test.Logger(func(_ logger.Level, format string, _ ...any) {
		mutex.Lock()
		logged = append(logged, format)
		mutex.Unlock()
	})))
	router.GET("/test", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello")
	})

	s := &Server{
		Address:     "localhost:4556",
		ReadTimeout: 10 * time.Second,
		Handler:     router,
		Parent:      test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	res, err := http.Get("http://localhost:4556/test")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "camrecorder", res.Header.Get("Server"))

	byts, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(byts))

	mutex.Lock()
	defer mutex.Unlock()

	require.Equal(t, []string{
		"[conn %v] %s %s",
		"[conn %v] [c->s] %s",
		"[conn %v] [s->c] %s",
	}, logged)
}

func TestSplitAddress(t *testing.T) {
	for _, ca := range []struct {
		name    string
		in      string
		network string
		address string
	}{
		{
			"tcp",
			"127.0.0.1:9997",
			"tcp",
			"127.0.0.1:9997",
		},
		{
			"tcp all interfaces",
			":9997",
			"tcp",
			":9997",
		},
		{
			"unix",
			"unix:///tmp/camrecorder.sock",
			"unix",
			"/tmp/camrecorder.sock",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			network, address := splitAddress(ca.in)
			require.Equal(t, ca.network, network)
			require.Equal(t, ca.address, address)
		})
	}
}

func TestUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "api.sock")

	// stale socket of a previous run
	err := os.WriteFile(socketPath, nil, 0o644)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/recordings/list", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "[]")
	})

	s := &Server{
		Address:     "unix://" + socketPath,
		ReadTimeout: 10 * time.Second,
		Handler:     router,
		Parent:      test.NilLogger,
	}
	err = s.Initialize()
	require.NoError(t, err)

	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	hc := &http.Client{Transport: tr}

	res, err := hc.Get("http://localhost/v1/recordings/list")
	require.NoError(t, err)
	byts, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "[]", string(byts))

	tr.CloseIdleConnections()
	s.Close()

	_, err = os.Stat(socketPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestErrorLogWriter(t *testing.T) {
	var logged []string

	w := &errorLogWriter{test.Logger(func(level logger.Level, format string, args ...any) {
		require.Equal(t, logger.Debug, level)
		logged = append(logged, fmt.Sprintf(format, args...))
	})}

	n, err := w.Write([]byte("http: TLS handshake error\n"))
	require.NoError(t, err)
	require.Equal(t, 26, n)
	require.Equal(t, []string{"http: TLS handshake error"}, logged)

	n, err = (&errorLogWriter{}).Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestCloseBeforeRequests(t *testing.T) {
	s := &Server{
		Address:     "localhost:4557",
		ReadTimeout: 10 * time.Second,
		Handler:     http.NotFoundHandler(),
		Parent:      test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	s.Close()

	_, err = net.Dial("tcp", "localhost:4557")
	require.Error(t, err)
}

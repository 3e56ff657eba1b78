package websocket

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestServerConn(t *testing.T) {
	pingReceived := make(chan struct{})
	pingInterval = 100 * time.Millisecond
	clientClosed := make(chan struct{})

	handler := func(w http.ResponseWriter, r *http.Request) {
		c := &ServerConn{W: w, Req: r}
		err := c.Initialize()
		require.NoError(t, err)
		defer c.Close()

		err = c.WriteJSON(map[string]int{"tfps": 60000})
		require.NoError(t, err)

		<-c.Done()
		close(clientClosed)
	}

	ln, err := net.Listen("tcp", "localhost:6344")
	require.NoError(t, err)
	defer ln.Close()

	s := &http.Server{Handler: http.HandlerFunc(handler)}
	go s.Serve(ln) //nolint:errcheck
	defer s.Shutdown(context.Background()) //nolint:errcheck

	c, res, err := websocket.DefaultDialer.Dial("ws://localhost:6344/", nil)
	require.NoError(t, err)
	defer res.Body.Close()

	c.SetPingHandler(func(_ string) error {
		select {
		case <-pingReceived:
		default:
			close(pingReceived)
		}
		return nil
	})

	var msg map[string]int
	err = c.ReadJSON(&msg)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"tfps": 60000}, msg)

	go func() {
		for {
			_, _, err2 := c.ReadMessage()
			if err2 != nil {
				return
			}
		}
	}()

	<-pingReceived

	c.Close()
	<-clientClosed
}

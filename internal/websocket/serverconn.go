// Package websocket provides server-side WebSocket connections.
package websocket

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var (
	pingInterval = 30 * time.Second
	pingTimeout  = 5 * time.Second
	writeTimeout = 2 * time.Second
)

// ErrClosed is returned when writing to a closed connection.
var ErrClosed = errors.New("connection closed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// ServerConn is a server-side WebSocket connection that pushes JSON messages,
// with automatic, periodic ping-pong.
// Incoming messages are discarded.
type ServerConn struct {
	W   http.ResponseWriter
	Req *http.Request

	wc *websocket.Conn

	terminate chan struct{}
	write     chan []byte
	writeErr  chan error
	readDone  chan struct{}
	done      chan struct{}
}

// Initialize upgrades the HTTP connection.
func (c *ServerConn) Initialize() error {
	var err error
	c.wc, err = upgrader.Upgrade(c.W, c.Req, nil)
	if err != nil {
		return err
	}

	c.terminate = make(chan struct{})
	c.write = make(chan []byte)
	c.writeErr = make(chan error)
	c.readDone = make(chan struct{})
	c.done = make(chan struct{})

	go c.runReader()
	go c.run()

	return nil
}

// Close closes ServerConn.
func (c *ServerConn) Close() {
	close(c.terminate)
	<-c.done
	c.wc.Close() //nolint:errcheck
	<-c.readDone
}

// RemoteAddr returns the remote address.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.wc.RemoteAddr()
}

// Done returns a channel that is closed when the client disconnects.
func (c *ServerConn) Done() <-chan struct{} {
	return c.readDone
}

func (c *ServerConn) runReader() {
	defer close(c.readDone)

	c.wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck

	c.wc.SetPongHandler(func(string) error {
		c.wc.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)) //nolint:errcheck
		return nil
	})

	for {
		_, _, err := c.wc.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (c *ServerConn) run() {
	defer close(c.done)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case byts := <-c.write:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			c.writeErr <- c.wc.WriteMessage(websocket.TextMessage, byts)

		case <-pingTicker.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			c.wc.WriteMessage(websocket.PingMessage, nil)       //nolint:errcheck

		case <-c.terminate:
			return
		}
	}
}

// WriteJSON writes a JSON object.
func (c *ServerConn) WriteJSON(in any) error {
	byts, err := json.Marshal(in)
	if err != nil {
		return err
	}

	select {
	case c.write <- byts:
		return <-c.writeErr
	case <-c.terminate:
		return ErrClosed
	}
}

package api //nolint:revive

import (
	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/websocket"
)

func (a *API) addFPSClient() chan APIFPSUpdate {
	ch := make(chan APIFPSUpdate, 8)

	a.mutex.Lock()
	a.fpsClients[ch] = struct{}{}
	a.mutex.Unlock()

	return ch
}

func (a *API) removeFPSClient(ch chan APIFPSUpdate) {
	a.mutex.Lock()
	delete(a.fpsClients, ch)
	a.mutex.Unlock()
}

func (a *API) onFPSWebSocket(ctx *gin.Context) {
	ch := a.addFPSClient()
	defer a.removeFPSClient(ch)

	wc := &websocket.ServerConn{
		W:   ctx.Writer,
		Req: ctx.Request,
	}
	err := wc.Initialize()
	if err != nil {
		// the upgrader already wrote the response
		a.Log(logger.Warn, "unable to upgrade connection: %v", err)
		ctx.Abort()
		return
	}
	defer wc.Close()

	a.Log(logger.Debug, "FPS observer connected from %v", wc.RemoteAddr())

	for {
		select {
		case u := <-ch:
			err = wc.WriteJSON(u)
			if err != nil {
				return
			}

		case <-wc.Done():
			a.Log(logger.Debug, "FPS observer from %v disconnected", wc.RemoteAddr())
			return

		case <-ctx.Request.Context().Done():
			return
		}
	}
}

// FPSObservers returns the number of connected FPS observers.
func (a *API) FPSObservers() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.fpsClients)
}


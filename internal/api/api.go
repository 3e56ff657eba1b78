// Package api contains the API server.
package api //nolint:revive

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/httpp"
	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/render"
	"github.com/bluenviron/camrecorder/internal/scheduler"
)

type apiScheduler interface {
	StartRecording() error
	StopRecording() error
	SurfaceChanged(width int, height int) error
	SetFilter(name string) error
	SetRecordMethod(method conf.RecordMethod) error
	Status() (scheduler.Status, error)
}

// API is an API server.
type API struct {
	Version     string
	Started     time.Time
	Address     string
	ReadTimeout conf.StringDuration
	Conf        *conf.Conf
	Scheduler   apiScheduler
	Display     *render.Display
	Parent      logger.Writer

	httpServer *httpp.Server
	mutex      sync.RWMutex
	lastErr    error
	fpsClients map[chan APIFPSUpdate]struct{}
}

// Initialize initializes API.
func (a *API) Initialize() error {
	if a.ReadTimeout == 0 {
		a.ReadTimeout = conf.StringDuration(10 * time.Second)
	}

	a.fpsClients = make(map[chan APIFPSUpdate]struct{})

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.Use(httpp.MiddlewareServerHeader)
	router.Use(httpp.MiddlewareLogger(a))

	group := router.Group("/v1")

	group.GET("/info", a.onInfo)
	group.GET("/status", a.onStatus)

	group.POST("/recording/start", a.onRecordingStart)
	group.POST("/recording/stop", a.onRecordingStop)

	group.POST("/filter/:name", a.onFilter)
	group.POST("/recordmethod/:name", a.onRecordMethod)
	group.POST("/surface", a.onSurface)

	group.GET("/snapshot.png", a.onSnapshot)
	group.GET("/fps/ws", a.onFPSWebSocket)

	group.GET("/recordings/list", a.onRecordingsList)
	group.DELETE("/recordings/delete", a.onRecordingsDelete)

	a.httpServer = &httpp.Server{
		Address:     a.Address,
		ReadTimeout: time.Duration(a.ReadTimeout),
		Handler:     router,
		Parent:      a,
	}
	err := a.httpServer.Initialize()
	if err != nil {
		return err
	}

	a.Log(logger.Info, "listener opened on "+a.Address)

	return nil
}

// Close closes the API.
func (a *API) Close() {
	a.Log(logger.Info, "listener is closing")
	a.httpServer.Close()
}

// Log implements logger.Writer.
func (a *API) Log(level logger.Level, format string, args ...any) {
	a.Parent.Log(level, "[API] "+format, args...)
}

// ReloadConf is called by core when the configuration changes.
func (a *API) ReloadConf(conf *conf.Conf) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.Conf = conf
}

// OnRecordingState is called by the scheduler when a recording starts or stops.
func (a *API) OnRecordingState(st scheduler.RecordingState) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if st.Enabled {
		a.lastErr = nil
	} else if st.Err != nil {
		a.lastErr = st.Err
	}
}

// OnFPS is called by the scheduler every time the frame rate is measured.
func (a *API) OnFPS(tfps int64, dropped uint64) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	u := APIFPSUpdate{TFPS: tfps, Dropped: dropped}

	for ch := range a.fpsClients {
		select {
		case ch <- u:
		default:
		}
	}
}

func (a *API) writeError(ctx *gin.Context, status int, err error) {
	// show error in logs
	a.Log(logger.Error, err.Error())

	// add error to response
	ctx.JSON(status, &APIError{
		Status: "error",
		Error:  err.Error(),
	})
}

func (a *API) writeOK(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, &APIOK{Status: "ok"})
}

func (a *API) writeSchedulerError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRecording), errors.Is(err, scheduler.ErrNotRecording):
		a.writeError(ctx, http.StatusConflict, err)

	case errors.Is(err, scheduler.ErrTerminated):
		a.writeError(ctx, http.StatusServiceUnavailable, err)

	default:
		a.writeError(ctx, http.StatusInternalServerError, err)
	}
}

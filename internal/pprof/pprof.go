// Package pprof contains a pprof exporter.
package pprof

import (
	"net/http"
	"time"

	// start pprof
	_ "net/http/pprof"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/httpp"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// PPROF is a pprof exporter.
type PPROF struct {
	Address     string
	ReadTimeout conf.StringDuration
	Parent      logger.Writer

	httpServer *httpp.Server
}

// Initialize initializes PPROF.
func (pp *PPROF) Initialize() error {
	if pp.ReadTimeout == 0 {
		pp.ReadTimeout = conf.StringDuration(10 * time.Second)
	}

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.Use(httpp.MiddlewareServerHeader)

	// NoRoute handlers would inherit a 404 status.
	router.Any("/debug/pprof/*path", pp.onRequest)

	pp.httpServer = &httpp.Server{
		Address:     pp.Address,
		ReadTimeout: time.Duration(pp.ReadTimeout),
		Handler:     router,
		Parent:      pp,
	}
	err := pp.httpServer.Initialize()
	if err != nil {
		return err
	}

	pp.Log(logger.Info, "listener opened on "+pp.Address)

	return nil
}

// Close closes PPROF.
func (pp *PPROF) Close() {
	pp.Log(logger.Info, "listener is closing")
	pp.httpServer.Close()
}

// Log implements logger.Writer.
func (pp *PPROF) Log(level logger.Level, format string, args ...any) {
	pp.Parent.Log(level, "[pprof] "+format, args...)
}

func (pp *PPROF) onRequest(ctx *gin.Context) {
	http.DefaultServeMux.ServeHTTP(ctx.Writer, ctx.Request)
}

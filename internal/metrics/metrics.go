// Package metrics contains the metrics provider.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/httpp"
	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/scheduler"
)

func metric(key string, tags string, value int64) string {
	return key + tags + " " + strconv.FormatInt(value, 10) + "\n"
}

func metricFloat(key string, tags string, value float64) string {
	return key + tags + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

type metricsScheduler interface {
	Status() (scheduler.Status, error)
}

// Metrics is a metrics provider.
type Metrics struct {
	Address     string
	ReadTimeout conf.StringDuration
	Scheduler   metricsScheduler
	Parent      logger.Writer

	httpServer *httpp.Server
}

// Initialize initializes Metrics.
func (m *Metrics) Initialize() error {
	if m.ReadTimeout == 0 {
		m.ReadTimeout = conf.StringDuration(10 * time.Second)
	}

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.Use(httpp.MiddlewareServerHeader)
	router.GET("/metrics", m.onMetrics)

	m.httpServer = &httpp.Server{
		Address:     m.Address,
		ReadTimeout: time.Duration(m.ReadTimeout),
		Handler:     router,
		Parent:      m,
	}
	err := m.httpServer.Initialize()
	if err != nil {
		return err
	}

	m.Log(logger.Info, "listener opened on "+m.Address)

	return nil
}

// Close closes Metrics.
func (m *Metrics) Close() {
	m.Log(logger.Info, "listener is closing")
	m.httpServer.Close()
}

// Log implements logger.Writer.
func (m *Metrics) Log(level logger.Level, format string, args ...any) {
	m.Parent.Log(level, "[metrics] "+format, args...)
}

func (m *Metrics) onMetrics(ctx *gin.Context) {
	st, err := m.Scheduler.Status()
	if err != nil {
		ctx.Writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	tags := "{method=\"" + st.RecordMethod.String() + "\"}"

	out := ""
	out += metric("ticks", "", int64(st.Ticks))
	out += metric("frames_rendered", "", int64(st.Rendered))
	out += metric("frames_dropped", "", int64(st.Dropped))
	out += metricFloat("fps", "", float64(st.TFPS)/1000)
	out += metric("recording", tags, boolToInt(st.Recording))
	out += metric("recording_bytes", tags, int64(st.Size))
	out += metricFloat("recording_seconds", tags, st.Duration.Seconds())

	ctx.Writer.WriteHeader(http.StatusOK)
	ctx.Writer.Write([]byte(out)) //nolint:errcheck
}

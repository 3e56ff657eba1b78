package metrics

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/scheduler"
	"github.com/bluenviron/camrecorder/internal/test"
)

type dummyScheduler struct {
	err error
}

func (s dummyScheduler) Status() (scheduler.Status, error) {
	if s.err != nil {
		return scheduler.Status{}, s.err
	}

	return scheduler.Status{
		Recording:    true,
		Path:         "/rec/a.mp4",
		Size:         2048,
		Duration:     2500 * time.Millisecond,
		RecordMethod: conf.RecordMethodOffscreen,
		Ticks:        360,
		Rendered:     357,
		Dropped:      3,
		TFPS:         59500,
	}, nil
}

func TestMetrics(t *testing.T) {
	m := Metrics{
		Address:   "localhost:9988",
		Scheduler: dummyScheduler{},
		Parent:    test.NilLogger,
	}
	err := m.Initialize()
	require.NoError(t, err)
	defer m.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	res, err := hc.Get("http://localhost:9988/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	byts, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t,
		"ticks 360\n"+
			"frames_rendered 357\n"+
			"frames_dropped 3\n"+
			"fps 59.5\n"+
			"recording{method=\"offscreen\"} 1\n"+
			"recording_bytes{method=\"offscreen\"} 2048\n"+
			"recording_seconds{method=\"offscreen\"} 2.5\n",
		string(byts))
}

func TestMetricsTerminated(t *testing.T) {
	m := Metrics{
		Address:   "localhost:9988",
		Scheduler: dummyScheduler{err: scheduler.ErrTerminated},
		Parent:    test.NilLogger,
	}
	err := m.Initialize()
	require.NoError(t, err)
	defer m.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	res, err := hc.Get("http://localhost:9988/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

package api //nolint:revive

import (
	"fmt"
	"image/png"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/codec"
	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/logger"
)

func (a *API) onInfo(ctx *gin.Context) {
	video, audio := codec.Names()

	ctx.JSON(http.StatusOK, &APIInfo{
		Version:       a.Version,
		Started:       a.Started,
		VideoEncoders: video,
		AudioEncoders: audio,
	})
}

func (a *API) onStatus(ctx *gin.Context) {
	st, err := a.Scheduler.Status()
	if err != nil {
		a.writeSchedulerError(ctx, err)
		return
	}

	out := &APIStatus{
		Recording:      st.Recording,
		RecordSize:     st.Size,
		RecordDuration: st.Duration.Seconds(),
		RecordMethod:   st.RecordMethod,
		DisplayWidth:   st.DisplayWidth,
		DisplayHeight:  st.DisplayHeight,
		Ticks:          st.Ticks,
		Rendered:       st.Rendered,
		Dropped:        st.Dropped,
		TFPS:           st.TFPS,
	}

	if st.Recording {
		out.RecordPath = &st.Path
	}

	a.mutex.RLock()
	if a.lastErr != nil {
		v := a.lastErr.Error()
		out.LastError = &v
	}
	a.mutex.RUnlock()

	ctx.JSON(http.StatusOK, out)
}

func (a *API) onRecordingStart(ctx *gin.Context) {
	err := a.Scheduler.StartRecording()
	if err != nil {
		a.writeSchedulerError(ctx, err)
		return
	}

	a.writeOK(ctx)
}

func (a *API) onRecordingStop(ctx *gin.Context) {
	err := a.Scheduler.StopRecording()
	if err != nil {
		a.writeSchedulerError(ctx, err)
		return
	}

	a.writeOK(ctx)
}

func (a *API) onFilter(ctx *gin.Context) {
	err := a.Scheduler.SetFilter(ctx.Param("name"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	a.writeOK(ctx)
}

func (a *API) onRecordMethod(ctx *gin.Context) {
	var method conf.RecordMethod
	err := method.UnmarshalEnv("", ctx.Param("name"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	err = a.Scheduler.SetRecordMethod(method)
	if err != nil {
		a.writeSchedulerError(ctx, err)
		return
	}

	a.writeOK(ctx)
}

func (a *API) onSurface(ctx *gin.Context) {
	var in APISurface
	err := ctx.ShouldBindJSON(&in)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	err = a.Scheduler.SurfaceChanged(in.Width, in.Height)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	a.writeOK(ctx)
}

func (a *API) onSnapshot(ctx *gin.Context) {
	if a.Display == nil {
		a.writeError(ctx, http.StatusNotFound, fmt.Errorf("display not available"))
		return
	}

	img := a.Display.Snapshot()

	ctx.Header("Content-Type", "image/png")
	ctx.Status(http.StatusOK)

	err := png.Encode(ctx.Writer, img)
	if err != nil {
		a.Log(logger.Warn, "unable to encode snapshot: %v", err)
	}
}

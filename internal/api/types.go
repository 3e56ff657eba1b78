package api

import (
	"time"

	"github.com/bluenviron/camrecorder/internal/conf"
)

// APIError is a generic error.
type APIError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// APIOK is returned on success.
type APIOK struct {
	Status string `json:"status"`
}

// APIInfo contains informations about the software.
type APIInfo struct {
	Version       string    `json:"version"`
	Started       time.Time `json:"started"`
	VideoEncoders []string  `json:"videoEncoders"`
	AudioEncoders []string  `json:"audioEncoders"`
}

// APIStatus is the state of the render loop and of the recording.
type APIStatus struct {
	Recording      bool              `json:"recording"`
	RecordPath     *string           `json:"recordPath"`
	RecordSize     uint64            `json:"recordSize"`
	RecordDuration float64           `json:"recordDuration"`
	RecordMethod   conf.RecordMethod `json:"recordMethod"`
	LastError      *string           `json:"lastError"`
	DisplayWidth   int               `json:"displayWidth"`
	DisplayHeight  int               `json:"displayHeight"`
	Ticks          uint64            `json:"ticks"`
	Rendered       uint64            `json:"rendered"`
	Dropped        uint64            `json:"dropped"`
	TFPS           int64             `json:"tfps"`
}

// APISurface is a display geometry.
type APISurface struct {
	Width  int `json:"width" binding:"required,gt=0"`
	Height int `json:"height" binding:"required,gt=0"`
}

// APIFPSUpdate is pushed to FPS observers.
type APIFPSUpdate struct {
	TFPS    int64  `json:"tfps"`
	Dropped uint64 `json:"dropped"`
}

// APIRecording is a finished recording.
type APIRecording struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// APIRecordingList is a list of recordings.
type APIRecordingList struct {
	ItemCount int            `json:"itemCount"`
	PageCount int            `json:"pageCount"`
	Items     []APIRecording `json:"items"`
}

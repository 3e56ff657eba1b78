// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bluenviron/camrecorder/internal/conf/env"
	"github.com/bluenviron/camrecorder/internal/conf/yamlwrapper"
	"github.com/bluenviron/camrecorder/internal/logger"
)

// EnvPrefix is the prefix of environment variables that override the configuration.
const EnvPrefix = "CAMREC"

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// General
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogStructured   bool            `json:"logStructured"`
	LogFile         string          `json:"logFile"`
	SysLogPrefix    string          `json:"sysLogPrefix"`

	// Control API
	API        bool   `json:"api"`
	APIAddress string `json:"apiAddress"`

	// Diagnostics
	Metrics        bool   `json:"metrics"`
	MetricsAddress string `json:"metricsAddress"`
	PPROF          bool   `json:"pprof"`
	PPROFAddress   string `json:"pprofAddress"`

	// Display
	DisplayWidth  int     `json:"displayWidth"`
	DisplayHeight int     `json:"displayHeight"`
	RefreshRate   float64 `json:"refreshRate"`
	Filter        string  `json:"filter"`

	// Camera
	CameraFPS    float64        `json:"cameraFPS"`
	FrameTimeout StringDuration `json:"frameTimeout"`

	// Video
	VideoWidth            int    `json:"videoWidth"`
	VideoHeight           int    `json:"videoHeight"`
	VideoBitrate          int    `json:"videoBitrate"`
	VideoFPS              int    `json:"videoFPS"`
	VideoKeyframeInterval int    `json:"videoKeyframeInterval"`
	VideoEncoder          string `json:"videoEncoder"`

	// Audio
	AudioSource     AudioSource `json:"audioSource"`
	AudioCommand    string      `json:"audioCommand"`
	AudioSampleRate int         `json:"audioSampleRate"`
	AudioChannels   int         `json:"audioChannels"`
	AudioBitrate    int         `json:"audioBitrate"`
	AudioEncoder    string      `json:"audioEncoder"`

	// Encoding
	EncoderPollTimeout StringDuration `json:"encoderPollTimeout"`

	// Recording
	RecordOnStart       bool         `json:"recordOnStart"`
	RecordPath          string       `json:"recordPath"`
	RecordFormat        RecordFormat `json:"recordFormat"`
	RecordMethod        RecordMethod `json:"recordMethod"`
	RecordMaxSize       StringSize   `json:"recordMaxSize"`
	RunOnRecordComplete string       `json:"runOnRecordComplete"`
}

func (conf *Conf) setDefaults() {
	// General
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "camrecorder.log"
	conf.SysLogPrefix = "camrecorder"

	// Control API
	conf.APIAddress = "127.0.0.1:9997"

	// Diagnostics
	conf.MetricsAddress = "127.0.0.1:9998"
	conf.PPROFAddress = "127.0.0.1:9999"

	// Display
	conf.DisplayWidth = 1920
	conf.DisplayHeight = 1080
	conf.RefreshRate = 60
	conf.Filter = "none"

	// Camera
	conf.CameraFPS = 30
	conf.FrameTimeout = StringDuration(2500 * time.Millisecond)

	// Video
	conf.VideoWidth = 1280
	conf.VideoHeight = 720
	conf.VideoBitrate = 4000000
	conf.VideoFPS = 30
	conf.VideoKeyframeInterval = 5
	conf.VideoEncoder = "x264"

	// Audio
	conf.AudioSource = AudioSourceTone
	conf.AudioSampleRate = 44100
	conf.AudioChannels = 1
	conf.AudioBitrate = 128000
	conf.AudioEncoder = "aac"

	// Encoding
	conf.EncoderPollTimeout = StringDuration(10 * time.Millisecond)

	// Recording
	conf.RecordPath = "./recordings/%Y-%m-%d_%H-%M-%S_%id"
	conf.RecordFormat = RecordFormatMP4
	conf.RecordMethod = RecordMethodDrawTwice
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load(EnvPrefix, conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Clone clones the configuration.
func (conf Conf) Clone() *Conf {
	enc, err := json.Marshal(conf)
	if err != nil {
		panic(err)
	}

	var dest Conf
	err = json.Unmarshal(enc, &dest)
	if err != nil {
		panic(err)
	}

	return &dest
}

func checkEvenPositive(name string, v int) error {
	if v <= 0 || (v%2) != 0 {
		return fmt.Errorf("'%s' must be a positive even number", name)
	}
	return nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	// General

	if conf.LogFile == "" {
		for _, d := range conf.LogDestinations {
			if d == logger.DestinationFile {
				return fmt.Errorf("'logFile' must be set when 'file' is a log destination")
			}
		}
	}

	// Display

	if conf.DisplayWidth <= 0 || conf.DisplayHeight <= 0 {
		return fmt.Errorf("'displayWidth' and 'displayHeight' must be greater than zero")
	}
	if conf.RefreshRate <= 0 {
		return fmt.Errorf("'refreshRate' must be greater than zero")
	}
	switch conf.Filter {
	case "none", "grayscale", "invert":
	default:
		return fmt.Errorf("invalid filter: '%s'", conf.Filter)
	}

	// Camera

	if conf.CameraFPS <= 0 {
		return fmt.Errorf("'cameraFPS' must be greater than zero")
	}
	if conf.FrameTimeout <= 0 {
		return fmt.Errorf("'frameTimeout' must be greater than zero")
	}

	// Video

	if err := checkEvenPositive("videoWidth", conf.VideoWidth); err != nil {
		return err
	}
	if err := checkEvenPositive("videoHeight", conf.VideoHeight); err != nil {
		return err
	}
	if conf.VideoBitrate <= 0 {
		return fmt.Errorf("'videoBitrate' must be greater than zero")
	}
	if conf.VideoFPS <= 0 {
		return fmt.Errorf("'videoFPS' must be greater than zero")
	}
	if conf.VideoKeyframeInterval <= 0 {
		return fmt.Errorf("'videoKeyframeInterval' must be greater than zero")
	}

	// Audio

	if conf.AudioSource == AudioSourceCommand && strings.TrimSpace(conf.AudioCommand) == "" {
		return fmt.Errorf("'audioCommand' must be set when 'audioSource' is 'command'")
	}
	if conf.AudioSource != AudioSourceNone {
		if conf.AudioSampleRate <= 0 {
			return fmt.Errorf("'audioSampleRate' must be greater than zero")
		}
		if conf.AudioChannels != 1 && conf.AudioChannels != 2 {
			return fmt.Errorf("'audioChannels' must be 1 or 2")
		}
	}

	// Encoding

	if conf.EncoderPollTimeout <= 0 {
		return fmt.Errorf("'encoderPollTimeout' must be greater than zero")
	}

	// Recording

	if conf.RecordPath == "" {
		return fmt.Errorf("'recordPath' must be set")
	}
	if conf.RecordFormat == RecordFormatMPEGTS && conf.AudioSource != AudioSourceNone &&
		conf.AudioEncoder == "lpcm" {
		return fmt.Errorf("the 'lpcm' audio encoder cannot be used with the 'mpegts' record format")
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	return d.Decode((*alias)(conf))
}

// FrameInterval returns the display refresh period.
func (conf *Conf) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / conf.RefreshRate)
}

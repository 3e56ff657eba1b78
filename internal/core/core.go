// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/api"
	"github.com/bluenviron/camrecorder/internal/capture"
	_ "github.com/bluenviron/camrecorder/internal/codec/aac"
	_ "github.com/bluenviron/camrecorder/internal/codec/lpcm"
	_ "github.com/bluenviron/camrecorder/internal/codec/x264"
	"github.com/bluenviron/camrecorder/internal/conf"
	"github.com/bluenviron/camrecorder/internal/confwatcher"
	"github.com/bluenviron/camrecorder/internal/externalcmd"
	"github.com/bluenviron/camrecorder/internal/framesync"
	"github.com/bluenviron/camrecorder/internal/logger"
	"github.com/bluenviron/camrecorder/internal/metrics"
	"github.com/bluenviron/camrecorder/internal/pprof"
	"github.com/bluenviron/camrecorder/internal/render"
	"github.com/bluenviron/camrecorder/internal/rlimit"
	"github.com/bluenviron/camrecorder/internal/scheduler"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"camrecorder.yml",
	"/usr/local/etc/camrecorder.yml",
	"/usr/etc/camrecorder.yml",
	"/etc/camrecorder/camrecorder.yml",
}

var cli struct {
	Version  bool   `help:"print version"`
	Record   bool   `help:"start recording immediately"`
	Confpath string `arg:"" optional:""`
}

// Core is an instance of camrecorder.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	confPath        string
	record          bool
	conf            *conf.Conf
	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	frames          *framesync.Sync
	camera          *capture.CameraSource
	renderer        *render.Software
	display         *render.Display
	scheduler       *scheduler.Scheduler
	metrics         *metrics.Metrics
	pprof           *pprof.PPROF
	confWatcher     *confwatcher.ConfWatcher

	apiMutex sync.RWMutex
	api      *api.API

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("camrecorder "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is camrecorder.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Confpath,
		record:    cli.Record,
		done:      make(chan struct{}),
	}

	tempConf, confPath, err := p.loadConf()
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}
	p.conf = tempConf
	p.confPath = confPath

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources(nil)
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...any) {
	p.logger.Log(level, format, args...)
}

func (p *Core) loadConf() (*conf.Conf, string, error) {
	c, confPath, err := conf.Load(p.confPath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	if p.record {
		c.RecordOnStart = true
	}

	return c, confPath, nil
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return nil
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

outer:
	for {
		select {
		case <-confChanged():
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := p.loadConf()
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources(nil)
}

func (p *Core) createResources(initial bool) error {
	if p.logger == nil {
		p.logger = &logger.Logger{
			Level:        logger.Level(p.conf.LogLevel),
			Destinations: p.conf.LogDestinations,
			Structured:   p.conf.LogStructured,
			File:         p.conf.LogFile,
			SysLogPrefix: p.conf.SysLogPrefix,
		}
		err := p.logger.Initialize()
		if err != nil {
			p.logger = nil
			return err
		}
	}

	if initial {
		p.Log(logger.Info, "camrecorder %s", version)

		if p.confPath != "" {
			a, _ := filepath.Abs(p.confPath)
			p.Log(logger.Info, "configuration loaded from %s", a)
		} else {
			list := make([]string, len(defaultConfPaths))
			for i, pa := range defaultConfPaths {
				a, _ := filepath.Abs(pa)
				list[i] = a
			}

			p.Log(logger.Warn,
				"configuration file not found (looked in %s), using the default configuration",
				strings.Join(list, ", "))
		}

		// on Linux, try to raise the number of file descriptors that can be opened
		// do not check for errors
		rlimit.Raise() //nolint:errcheck

		gin.SetMode(gin.ReleaseMode)

		p.externalCmdPool = &externalcmd.Pool{}
		p.externalCmdPool.Initialize()
	}

	if p.conf.PPROF && p.pprof == nil {
		i := &pprof.PPROF{
			Address: p.conf.PPROFAddress,
			Parent:  p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.pprof = i
	}

	if p.scheduler == nil {
		err := p.createPipeline()
		if err != nil {
			return err
		}
	}

	if p.conf.Metrics && p.metrics == nil {
		i := &metrics.Metrics{
			Address:   p.conf.MetricsAddress,
			Scheduler: p.scheduler,
			Parent:    p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.metrics = i
	}

	if p.conf.API {
		p.apiMutex.RLock()
		exists := p.api != nil
		p.apiMutex.RUnlock()

		if !exists {
			i := &api.API{
				Version:   version,
				Started:   time.Now(),
				Address:   p.conf.APIAddress,
				Conf:      p.conf,
				Scheduler: p.scheduler,
				Display:   p.display,
				Parent:    p,
			}
			err := i.Initialize()
			if err != nil {
				return err
			}

			p.apiMutex.Lock()
			p.api = i
			p.apiMutex.Unlock()
		}
	}

	if p.confWatcher == nil && p.confPath != "" {
		cf, _ := filepath.Abs(p.confPath)
		p.confWatcher = &confwatcher.ConfWatcher{
			FilePath: cf,
			Parent:   p,
		}
		err := p.confWatcher.Initialize()
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Core) createPipeline() error {
	p.frames = &framesync.Sync{
		Timeout: time.Duration(p.conf.FrameTimeout),
		Parent:  p,
	}
	p.frames.Initialize()

	p.camera = &capture.CameraSource{
		Width:  p.conf.VideoWidth,
		Height: p.conf.VideoHeight,
		FPS:    p.conf.CameraFPS,
		Sync:   p.frames,
		Parent: p,
	}
	p.camera.Initialize()

	p.renderer = &render.Software{
		Source: p.camera,
		Filter: p.conf.Filter,
	}
	err := p.renderer.Initialize()
	if err != nil {
		return err
	}

	p.display = &render.Display{
		Width:  p.conf.DisplayWidth,
		Height: p.conf.DisplayHeight,
	}
	p.display.Initialize()

	sched := &scheduler.Scheduler{
		Conf:             p.conf,
		Renderer:         p.renderer,
		Display:          p.display,
		Frames:           p.frames,
		ExternalCmdPool:  p.externalCmdPool,
		OnFPS:            p.onFPS,
		OnRecordingState: p.onRecordingState,
		Parent:           p,
	}
	err = sched.Initialize()
	if err != nil {
		return err
	}
	p.scheduler = sched

	return nil
}

func (p *Core) onFPS(tfps int64, dropped uint64) {
	p.Log(logger.Info, "%d.%03d FPS, %d dropped", tfps/1000, tfps%1000, dropped)

	p.apiMutex.RLock()
	defer p.apiMutex.RUnlock()

	if p.api != nil {
		p.api.OnFPS(tfps, dropped)
	}
}

func (p *Core) onRecordingState(st scheduler.RecordingState) {
	p.apiMutex.RLock()
	defer p.apiMutex.RUnlock()

	if p.api != nil {
		p.api.OnRecordingState(st)
	}
}

// pipelineConf returns the part of the configuration used by the pipeline.
func pipelineConf(c *conf.Conf) conf.Conf {
	cp := *c
	cp.LogLevel = 0
	cp.LogDestinations = nil
	cp.LogStructured = false
	cp.LogFile = ""
	cp.SysLogPrefix = ""
	cp.API = false
	cp.APIAddress = ""
	cp.Metrics = false
	cp.MetricsAddress = ""
	cp.PPROF = false
	cp.PPROFAddress = ""
	return cp
}

func (p *Core) closeResources(newConf *conf.Conf) {
	closeLogger := newConf == nil ||
		newConf.LogLevel != p.conf.LogLevel ||
		!reflect.DeepEqual(newConf.LogDestinations, p.conf.LogDestinations) ||
		newConf.LogStructured != p.conf.LogStructured ||
		newConf.LogFile != p.conf.LogFile ||
		newConf.SysLogPrefix != p.conf.SysLogPrefix

	closePipeline := newConf == nil ||
		closeLogger ||
		!reflect.DeepEqual(pipelineConf(newConf), pipelineConf(p.conf))

	closeAPI := newConf == nil ||
		newConf.API != p.conf.API ||
		newConf.APIAddress != p.conf.APIAddress ||
		closePipeline

	closeMetrics := newConf == nil ||
		newConf.Metrics != p.conf.Metrics ||
		newConf.MetricsAddress != p.conf.MetricsAddress ||
		closePipeline

	closePPROF := newConf == nil ||
		newConf.PPROF != p.conf.PPROF ||
		newConf.PPROFAddress != p.conf.PPROFAddress ||
		closeLogger

	closeConfWatcher := newConf == nil || closeLogger

	if closeConfWatcher && p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	p.apiMutex.RLock()
	i := p.api
	p.apiMutex.RUnlock()

	if i != nil {
		if closeAPI {
			i.Close()
			p.apiMutex.Lock()
			p.api = nil
			p.apiMutex.Unlock()
		} else {
			i.ReloadConf(newConf)
		}
	}

	if closeMetrics && p.metrics != nil {
		p.metrics.Close()
		p.metrics = nil
	}

	if closePipeline {
		if p.scheduler != nil {
			p.scheduler.Close()
			p.scheduler = nil
		}

		if p.camera != nil {
			p.camera.Close()
			p.camera = nil
		}

		p.renderer = nil
		p.display = nil
		p.frames = nil
	}

	if closePPROF && p.pprof != nil {
		p.pprof.Close()
		p.pprof = nil
	}

	if newConf == nil && p.externalCmdPool != nil {
		p.Log(logger.Info, "waiting for running hooks")
		p.externalCmdPool.Close()
	}

	if closeLogger && p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	p.closeResources(newConf)
	p.conf = newConf
	return p.createResources(false)
}

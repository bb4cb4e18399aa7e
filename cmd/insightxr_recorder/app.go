package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/InsightXR/recorder/internal/api"
	"github.com/InsightXR/recorder/internal/channel"
	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/internal/dispatcher"
	"github.com/InsightXR/recorder/internal/influx"
	"github.com/InsightXR/recorder/internal/logging"
	intOtel "github.com/InsightXR/recorder/internal/otel"
	"github.com/InsightXR/recorder/internal/session"
	"github.com/InsightXR/recorder/internal/storage"
	"github.com/InsightXR/recorder/internal/upload"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/rs/zerolog"
)

// CmdMetric records a host-supplied InfluxDB point. Registered only when influx is enabled.
const CmdMetric = ":METRIC:"

const shutdownTimeout = 10 * time.Second

type appOptions struct {
	ConfigDir  string
	Console    io.Writer
	Terminator upload.Terminator
}

// app holds every service of one recorder process.
type app struct {
	logs    *logging.SlogManager
	log     *slog.Logger
	logFile *os.File
	otel    *intOtel.Provider
	closers []io.Closer

	metrics  *influx.Manager
	backend  storage.Backend
	uploader *upload.Uploader
	session  *session.Handler
	api      *api.API
	dispatch *dispatcher.Dispatcher

	broadcast *channel.TransformChannel
	apply     *channel.TransformChannel
	aggregate *channel.AggregateChannel
	callback  *channel.NetworkCallbackChannel
}

// newApp starts every service. On error, whatever was already started is closed again.
func newApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	runStart := time.Now()
	if opts.Console == nil {
		opts.Console = os.Stderr
	}

	cfgErr := config.Load(opts.ConfigDir)

	a := &app{logs: logging.NewSlogManager()}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
		}
	}()

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, ExtensionName, runStart)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFile = f

	otelCfg := config.GetOTelConfig()
	var otelWriter io.Writer
	if otelCfg.Enabled {
		otelFile, err := os.OpenFile(filepath.Join(logsDir, ExtensionName+".otel.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open OTel log file: %w", err)
		}
		a.closers = append(a.closers, otelFile)
		otelWriter = otelFile
	}
	a.otel, err = intOtel.New(ctx, intOtel.FromConfig(otelCfg, CurrentVersion, otelWriter))
	if err != nil {
		return nil, fmt.Errorf("failed to init OTel: %w", err)
	}

	level := config.GetString("logLevel")
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, err := logging.NewGelfHandler(gl.Address, level)
		if err != nil {
			fmt.Fprintf(opts.Console, "Graylog disabled: %v\n", err)
		} else {
			a.logs.AddHandler(h)
			a.closers = append(a.closers, closer)
		}
	}
	a.logs.Setup(io.MultiWriter(opts.Console, a.logFile), level, a.otel.LoggerProvider())
	a.log = a.logs.Logger()

	if cfgErr != nil {
		a.log.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		a.log.Info("Loaded config", "dir", opts.ConfigDir)
	}
	a.log.Info("Starting", "version", CurrentVersion, "build", BuildDate, "logFile", logPath)

	zlvl, err := zerolog.ParseLevel(level)
	if err != nil || zlvl == zerolog.NoLevel {
		zlvl = zerolog.InfoLevel
	}
	zlog := zerolog.New(a.logFile).Level(zlvl).With().Timestamp().Logger()

	a.broadcast = channel.NewTransformChannel("broadcast", a.log)
	a.apply = channel.NewTransformChannel("apply", a.log)
	a.aggregate = channel.NewAggregateChannel("aggregate", a.log)
	a.callback = channel.NewNetworkCallbackChannel("network", a.log)

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		m := influx.NewManager(zlog.With().Str("component", "influx").Logger(), influxCfg)
		if err := m.Connect(ctx); err != nil {
			a.log.Warn("Session metrics disabled", "error", err)
		} else {
			a.metrics = m
		}
	}

	backend, err := createStorageBackend(config.GetStorageConfig(), zlog, a.log)
	if err != nil {
		a.log.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	a.backend = backend
	if err := backend.Init(); err != nil {
		a.log.Error("Failed to initialize storage backend", "error", err)
		return nil, err
	}
	if a.metrics != nil {
		a.backend = &meteredBackend{Backend: backend, metrics: a.metrics, log: a.log}
	}

	sessCfg := config.GetSessionConfig()
	a.uploader = upload.New(upload.Dependencies{
		Config:     config.GetUploadConfig(),
		DevMode:    sessCfg.DevMode,
		Callback:   a.callback,
		Terminator: opts.Terminator,
		Logger:     a.log,
	})
	if err := a.uploader.StartScheduler(); err != nil {
		a.log.Warn("Spool flush schedule ignored", "error", err)
	}

	a.session = session.New(session.Dependencies{
		Config:    sessCfg,
		Broadcast: a.broadcast,
		Aggregate: a.aggregate,
		Backend:   a.backend,
		Uploader:  a.uploader,
		Logger:    a.log,
	})
	a.logs.SetSession(a.session)

	a.callback.Subscribe(a.onUploadResult)
	a.aggregate.Subscribe(func(motion core.ObjectMotionLog) {
		a.log.Debug("Session motion frozen", "objects", len(motion))
	})

	a.api = api.New(a.session, a.uploader, a.log)
	a.dispatch, err = dispatcher.New(logging.NewDispatcherLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.api.RegisterCommands(a.dispatch)
	if a.metrics != nil {
		a.dispatch.Register(CmdMetric, a.handleMetric, dispatcher.Buffered(100))
	}

	a.log.Info("Recorder ready", "commands", a.dispatch.Commands())
	return a, nil
}

func (a *app) onUploadResult(ok bool) {
	if ok {
		a.log.Info("Session uploaded")
	} else {
		a.log.Warn("Session upload failed, kept in spool")
	}
	if a.metrics != nil {
		if err := a.metrics.WriteUpload(ok, time.Now()); err != nil {
			a.log.Warn("Failed to write upload metric", "error", err)
		}
	}
}

func (a *app) handleMetric(c dispatcher.Command) (any, error) {
	point, err := influx.ParseMetric(c.Args)
	if err != nil {
		return nil, err
	}
	return nil, a.metrics.WritePoint(point)
}

// command dispatches a host command and logs failures.
func (a *app) command(name string, args ...string) (any, error) {
	res, err := a.dispatch.Dispatch(dispatcher.Command{Name: name, Args: args})
	if err != nil {
		a.log.Error("Command failed", "command", name, "error", err)
	}
	return res, err
}

// Close stops every service in reverse start order. Services never started are skipped.
func (a *app) Close() error {
	var errs []error

	if a.dispatch != nil {
		a.dispatch.Close()
	}
	if a.uploader != nil {
		a.uploader.Close()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("influx: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.logs.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.logs.Logger().Info("Shutdown complete")

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

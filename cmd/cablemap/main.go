package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cablewatch/cablemap/internal/api"
	"github.com/cablewatch/cablemap/internal/cache"
	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/dispatcher"
	"github.com/cablewatch/cablemap/internal/engine"
	"github.com/cablewatch/cablemap/internal/handlers"
	"github.com/cablewatch/cablemap/internal/influx"
	"github.com/cablewatch/cablemap/internal/logging"
	"github.com/cablewatch/cablemap/internal/metrics"
	"github.com/cablewatch/cablemap/internal/monitor"
	intOtel "github.com/cablewatch/cablemap/internal/otel"
	"github.com/cablewatch/cablemap/internal/reconcile"
	"github.com/cablewatch/cablemap/internal/segment"
	"github.com/cablewatch/cablemap/internal/simulator"
	"github.com/cablewatch/cablemap/internal/storage"
	wssurface "github.com/cablewatch/cablemap/internal/surface/websocket"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "cablemap"
)

const shutdownTimeout = 10 * time.Second

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// LogOptions are the outputs the logger was last set up with
	LogOptions logging.Options

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

func main() {
	flags := pflag.NewFlagSet(ServiceName, pflag.ExitOnError)
	configDir := flags.String("config", ".", "directory containing "+config.ConfigFileName)
	flags.String("listen", "", "HTTP listen address, overrides server.listen")
	flags.String("log-level", "", "log level, overrides logLevel")
	showVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("%s %s (%s)\n", ServiceName, Version, BuildDate)
		return
	}

	if err := run(*configDir, flags); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ServiceName, err)
		os.Exit(1)
	}
}

func run(configDir string, flags *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Console-only logging until the config is read
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info", ServiceName: ServiceName})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}
	bindFlags(flags)

	setupLogging(ctx)
	defer closeLogging()

	Logger.Info("Starting up...", "version", Version, "buildDate", BuildDate)

	app, err := build(ctx)
	if err != nil {
		return err
	}
	return app.serve(ctx)
}

func bindFlags(flags *pflag.FlagSet) {
	if f := flags.Lookup("listen"); f != nil && f.Changed {
		_ = viper.BindPFlag("server.listen", f)
	}
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		_ = viper.BindPFlag("logLevel", f)
	}
}

func setupLogging(ctx context.Context) {
	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
		}
	}

	LogFilePath = logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		_ = os.Rename(LogFilePath, LogFilePath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	}

	var out io.Writer = os.Stdout
	if LogFile != nil {
		out = io.MultiWriter(os.Stdout, LogFile)
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer
		if LogFile != nil {
			w = LogFile
		}
		OTelProvider, err = intOtel.New(ctx, intOtel.FromConfig(otelCfg, Version, w))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	LogOptions = logging.Options{
		File:        out,
		Level:       config.GetString("logLevel"),
		ServiceName: ServiceName,
	}
	if OTelProvider != nil {
		LogOptions.Provider = OTelProvider.LoggerProvider()
	}
	if config.GetBool("graylog.enabled") {
		addr := config.GetString("graylog.address")
		gw, err := gelf.NewWriter(addr)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", addr)
		} else {
			LogOptions.Graylog = gw
		}
	}

	SlogManager.Setup(LogOptions)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath)
	if removed, err := logging.PruneSessionLogs(logsDir, ServiceName, config.GetInt("keepLogs")); err != nil {
		Logger.Warn("Failed to prune old session logs", "error", err, "dir", logsDir)
	} else if len(removed) > 0 {
		Logger.Debug("Pruned old session logs", "count", len(removed))
	}
}

func closeLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
		}
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

// app holds the running services.
type app struct {
	client     *api.Client
	store      storage.FaultStore
	dispatcher *dispatcher.Dispatcher
	hub        *wssurface.Hub
	manager    *engine.Manager
	monitor    *monitor.Service
	sink       *influx.Sink
	server     *http.Server
}

func build(ctx context.Context) (*app, error) {
	a := &app{}

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	segs, err := config.GetSegments()
	if err != nil {
		return nil, err
	}
	registry, err := segment.NewRegistry(segs)
	if err != nil {
		return nil, err
	}
	Logger.Info("Segments configured", "panes", registry.Keys())

	serverURL := config.GetString("api.serverUrl")
	// One route poller per pane plus the shared fault poller and submissions.
	// Requests carry no timeout; poll contexts cancel them.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = len(registry.Keys()) + 2
	a.client = api.New(serverURL, config.GetString("api.apiKey")).
		WithHTTPClient(&http.Client{Transport: transport})
	checkServerStatus(ctx, a.client, serverURL)

	a.store, err = initStorage(config.GetStorageConfig(), SlogManager.Component("storage"))
	if err != nil {
		return nil, err
	}

	a.sink, err = influx.Connect(ctx, config.GetInfluxConfig(), SlogManager.Component("influx"))
	switch {
	case errors.Is(err, influx.ErrDisabled):
		a.sink = nil
	case err != nil:
		Logger.Error("Failed to set up InfluxDB sink", "error", err)
		a.sink = nil
	default:
		a.sink.Start()
	}

	// Dispatcher logging goes through zerolog to the session log file
	var zw io.Writer = os.Stdout
	if LogFile != nil {
		zw = LogFile
	}
	zlog := zerolog.New(zw).With().Timestamp().Str("component", "dispatcher").Logger()
	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	a.hub = wssurface.New(wssurface.Config{
		Commands: a.dispatcher,
		MapError: handlers.DescribeError,
		Metrics:  collector,
		Logger:   SlogManager.Component("websocket"),
	})

	routes := cache.NewRouteCache()
	a.manager = engine.NewManager(engine.ManagerConfig{
		Registry:        registry,
		Source:          a.client,
		SurfaceFor:      func(key string) reconcile.Surface { return a.hub.Pane(key) },
		Cache:           routes,
		Store:           a.store,
		PollInterval:    config.GetDuration("poll.interval"),
		PopupCloseDelay: config.GetDuration("server.popupCloseDelay"),
		Metrics:         collector,
		Logger:          SlogManager.Logger(),
	})

	var sinks []simulator.Sink
	var statusSink monitor.StatusSink
	if a.sink != nil {
		sinks = append(sinks, a.sink)
		statusSink = a.sink
	}
	sim := simulator.New(simulator.Config{
		Registry: registry,
		Client:   a.client,
		Routes:   routes,
		Store:    a.store,
		Sinks:    sinks,
		Notifier: a.manager,
		Metrics:  collector,
		Logger:   SlogManager.Component("simulator"),
	})

	handlers.NewService(handlers.Dependencies{
		Simulator: sim,
		Panes:     a.manager,
		Sessions:  a.hub,
		Logger:    SlogManager.Logger(),
	}).RegisterHandlers(a.dispatcher)

	a.monitor = monitor.NewService(monitor.Dependencies{
		Source:     a.manager,
		Sink:       statusSink,
		Logger:     SlogManager.Logger(),
		StatusFile: filepath.Join(config.GetString("logsDir"), "status.json"),
		Interval:   config.GetDuration("statusInterval"),
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/status", a.monitor)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.client.Healthcheck(r.Context()); err != nil {
			http.Error(w, "data service unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	a.server = &http.Server{
		Addr:              config.GetString("server.listen"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Dynamic attributes on every log record
	LogOptions.Context = func() []slog.Attr {
		return []slog.Attr{
			slog.Int("clients", a.hub.Clients()),
			slog.Int("panes", len(registry.Keys())),
		}
	}
	SlogManager.Setup(LogOptions)
	Logger = SlogManager.Logger()

	return a, nil
}

func (a *app) serve(ctx context.Context) error {
	a.manager.Start(ctx)
	a.monitor.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		Logger.Info("Shutting down...")
	case serveErr = <-errCh:
		Logger.Error("HTTP server failed", "error", serveErr)
	}

	a.shutdown()
	return serveErr
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		Logger.Warn("HTTP server shutdown", "error", err)
	}
	a.hub.Close()
	a.monitor.Stop()
	a.manager.Stop()
	a.dispatcher.Close()
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB sink", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		Logger.Warn("Failed to close fault store", "error", err)
	}
	Logger.Info("Shutdown complete")
}

// checkServerStatus logs whether the data service answers; the engines keep
// polling regardless.
func checkServerStatus(ctx context.Context, client *api.Client, url string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Data service is not reachable yet", "url", url, "error", err)
		return
	}
	Logger.Info("Data service reachable", "url", url)
}

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

	"github.com/raceweek/raceweek/internal/cache"
	"github.com/raceweek/raceweek/internal/catalog"
	"github.com/raceweek/raceweek/internal/config"
	"github.com/raceweek/raceweek/internal/httpapi"
	"github.com/raceweek/raceweek/internal/influx"
	"github.com/raceweek/raceweek/internal/logging"
	"github.com/raceweek/raceweek/internal/monitor"
	intOtel "github.com/raceweek/raceweek/internal/otel"
	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/realtime/websocket"
	"github.com/raceweek/raceweek/internal/session"
	"github.com/raceweek/raceweek/internal/storage"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = "raceweek"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()

	// RoomCache mirrors rooms and players from the event bus
	RoomCache *cache.RoomCache = cache.NewRoomCache()

	storageBackend storage.Gateway
	influxManager  *influx.Manager
	monitorService *monitor.Service
)

func main() {
	if err := setupLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	Logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		Logger.Error("Exiting", "error", err)
		shutdownTelemetry()
		os.Exit(1)
	}
	shutdownTelemetry()
}

// setupLogging mirrors the bootstrap order: stdout logging, config, log
// file, OTel, then logging again with every sink attached.
func setupLogging() error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	configDir := os.Getenv("RACEWEEK_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	LogFilePath = logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
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

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    out,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else if otelCfg.Endpoint != "" {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		} else {
			Logger.Info("OTel provider initialized")
		}
	}

	var graylog io.Writer
	if gl := config.GetGraylogConfig(); gl.Enabled {
		graylog, err = logging.NewGraylogWriter(gl.Address, ServiceName)
		if err != nil {
			Logger.Error("Failed to set up graylog", "error", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logging.Options{
		File:     out,
		Level:    viper.GetString("logLevel"),
		Provider: otelLogProvider,
		Graylog:  graylog,
		Context: func() []slog.Attr {
			return []slog.Attr{slog.Int("rooms", RoomCache.Len())}
		},
	})
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath)
	return nil
}

func run(ctx context.Context) error {
	gameCfg := config.GetGameConfig()
	cat, err := catalog.LoadOrDefault(gameCfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	storageCfg := config.GetStorageConfig()
	storageBackend, err = createStorageBackend(storageCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := storageBackend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	hub, err := realtime.NewHub(logging.NewHubLogger(logging.Zerolog(SlogManager)))
	if err != nil {
		return fmt.Errorf("failed to create event hub: %w", err)
	}
	defer hub.Close()
	unsubscribe := RoomCache.Attach(hub)
	defer unsubscribe()

	metrics, err := setupMetrics(ctx)
	if err != nil {
		return err
	}

	svc, err := session.New(session.Dependencies{
		Store:   storageBackend,
		Bus:     hub,
		Catalog: cat,
		Logger:  Logger,
		Metrics: metrics,
		Config: session.Config{
			MaxPlayers:      gameCfg.MaxPlayers,
			MinPlayers:      gameCfg.MinPlayers,
			StartingMoney:   gameCfg.StartingMoney,
			StartingYear:    gameCfg.StartingYear,
			StarterVehicles: gameCfg.StarterVehicles,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session service: %w", err)
	}

	schedCfg := config.GetScheduleConfig()
	if schedCfg.Agent {
		ticker, err := session.NewTicker(svc, session.TickerConfig{
			Trigger:      schedCfg.Trigger,
			Window:       schedCfg.Window,
			PollInterval: schedCfg.PollInterval,
			Logger:       Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create day ticker: %w", err)
		}
		go func() {
			if err := ticker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				Logger.Error("Day ticker stopped", "error", err)
			}
		}()
		Logger.Info("Day ticker started", "trigger", schedCfg.Trigger, "window", schedCfg.Window)
	}

	stream := websocket.NewServer(hub, httpapi.Hello(svc), Logger)
	defer stream.Close()

	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		monitorService = newMonitor(monCfg, hub, stream)
		if err := monitorService.Start(); err != nil {
			return fmt.Errorf("failed to start status monitor: %w", err)
		}
		defer monitorService.Stop()
	}

	httpCfg := config.GetHTTPConfig()
	srv := &http.Server{
		Addr: httpCfg.Addr,
		Handler: httpapi.New(httpapi.Dependencies{
			Service: svc,
			Cache:   RoomCache,
			Stream:  stream,
			Logger:  Logger,
			APIKey:  httpCfg.APIKey,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("HTTP server listening", "addr", httpCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	Logger.Info("Shutting down...", "timeout", httpCfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	stream.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// setupMetrics combines OTel instruments with the InfluxDB writer when
// influx is enabled.
func setupMetrics(ctx context.Context) (session.Metrics, error) {
	otelMetrics, err := session.NewOTelMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	metrics := session.MultiMetrics{otelMetrics}

	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return metrics, nil
	}
	influxManager = influx.NewManager(logging.Zerolog(SlogManager), influxCfg)
	if err := influxManager.Connect(ctx); err != nil {
		Logger.Warn("InfluxDB unavailable, points go to backup file", "error", err)
	}
	influxManager.Start(10 * time.Second)
	Logger.Info("InfluxDB metrics enabled", "bucket", influxCfg.Bucket)
	return append(metrics, influxManager), nil
}

func newMonitor(cfg config.MonitorConfig, hub *realtime.Hub, stream *websocket.Server) *monitor.Service {
	deps := monitor.Dependencies{
		LogManager:    SlogManager,
		CachedRooms:   RoomCache.Len,
		Subscribers:   hub.Subscribers,
		StreamClients: stream.Connections,
		Interval:      cfg.Interval,
	}
	if cfg.StatusFile != "" {
		deps.StatusPath = filepath.Join(viper.GetString("logsDir"), cfg.StatusFile)
	}
	if fb, ok := storageBackend.(interface{ UsingFallback() bool }); ok {
		deps.LocalStorage = fb.UsingFallback
	}
	if influxManager != nil {
		deps.PendingPoints = influxManager.Pending
		deps.Sink = influxManager.Enqueue
	}
	return monitor.NewService(deps)
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB manager", "error", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to flush logs:", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "failed to shut down OTel:", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

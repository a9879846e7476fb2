package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/threadfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/threadfetch/internal/adapter/httpfetch"
	"github.com/vertextoedge/threadfetch/internal/adapter/jsonfile"
	"github.com/vertextoedge/threadfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/threadfetch/internal/config"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
	"github.com/vertextoedge/threadfetch/internal/logger"
	"github.com/vertextoedge/threadfetch/internal/port"
	"github.com/vertextoedge/threadfetch/internal/service/maintenance"
	"github.com/vertextoedge/threadfetch/internal/service/queue"
	"github.com/vertextoedge/threadfetch/internal/service/server"
	"github.com/vertextoedge/threadfetch/internal/telemetry"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger.Info("starting threadfetch",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Error("threadfetch stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	zapLogger.Info("application stopped successfully")
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	fsManager, err := filesystem.NewManagerWithBufferSize(cfg.Download.RootDir, cfg.Download.TempDir, cfg.Download.GetBufferSize())
	if err != nil {
		return fmt.Errorf("create filesystem manager: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tel, err := telemetry.New(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	dispatcher := event.NewInMemoryDispatcher(cfg.Queue.AsyncEvents)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	counters := event.NewMetricsHandler()
	dispatcher.Subscribe(counters)
	if tel.Enabled() {
		dispatcher.Subscribe(telemetry.NewEventHandler(tel))
	}

	transport := httpfetch.New(httpfetch.Config{
		UserAgent:             cfg.Download.UserAgent,
		ResponseHeaderTimeout: cfg.Download.GetResponseHeaderTimeout(),
		ProgressInterval:      cfg.Download.GetProgressInterval(),
		BufferSize:            cfg.Download.GetBufferSize(),
	}, fsManager, zapLogger)

	queueManager := queue.New(&queue.Config{
		MaxConcurrency: cfg.Queue.MaxConcurrency,
		StartupGrace:   cfg.Queue.GetStartupGrace(),
		InboxSize:      cfg.Queue.InboxSize,
	}, transport, store, fsManager, dispatcher, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queueManager.Start(ctx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}

	maintenanceService := maintenance.New(&maintenance.Config{
		CleanupInterval:    cfg.Maintenance.GetCleanupInterval(),
		TempFileMaxAge:     cfg.Maintenance.GetTempFileMaxAge(),
		CheckpointInterval: cfg.Maintenance.GetCheckpointInterval(),
	}, queueManager, fsManager, zapLogger)

	var metrics = tel.Handler()
	if !tel.Enabled() {
		metrics = nil
	}
	httpServer := server.New(&server.Config{
		BindAddr:      cfg.HTTP.BindAddr,
		AdminUsername: cfg.HTTP.AdminUsername,
		AdminPassword: cfg.HTTP.AdminPassword,
		ReadTimeout:   cfg.HTTP.GetReadTimeout(),
		WriteTimeout:  cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:   cfg.HTTP.GetIdleTimeout(),
	}, queueManager, store, fsManager, metrics, tel, zapLogger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, append([]os.Signal{os.Interrupt, syscall.SIGTERM}, backgroundSignals...)...)
	defer signal.Stop(sigChan)

	// OnTerminating runs before the root context is cancelled so interrupted
	// downloads are saved as pending
	terminate := sync.OnceFunc(func() {
		if err := queueManager.OnTerminating(); err != nil {
			zapLogger.Error("failed to save queue on shutdown", zap.Error(err))
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return maintenanceService.Start(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigChan:
				if slices.Contains(backgroundSignals, sig) {
					if err := queueManager.OnEnteringBackground(); err != nil {
						zapLogger.Error("failed to save queue", zap.Error(err))
					}
					continue
				}
				zapLogger.Info("shutdown signal received, stopping services...", zap.String("signal", sig.String()))
				terminate()
				cancel()
				return nil
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		terminate()
		if err := transport.Close(); err != nil {
			zapLogger.Warn("failed to stop transfers", zap.Error(err))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		maintenanceService.Stop()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zapLogger.Warn("failed to shut down telemetry", zap.Error(err))
		}
		return nil
	})

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("root_dir", fsManager.RootDir()),
		zap.String("storage", cfg.Storage.Backend),
	)

	runErr := g.Wait()
	closeErr := queueManager.Close()

	zapLogger.Info("queue summary", zap.Any("counters", counters.GetMetrics()))

	return errors.Join(runErr, closeErr)
}

func openStore(cfg *config.Config) (port.Store, error) {
	path := cfg.Storage.GetPath(cfg.Download.RootDir)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite queue store %s: %w", path, err)
		}
		return store, nil
	default:
		store, err := jsonfile.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open queue file %s: %w", path, err)
		}
		return store, nil
	}
}

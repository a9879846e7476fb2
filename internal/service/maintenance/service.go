package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/threadfetch/internal/port"
)

// Queue is the part of the download queue maintenance depends on
type Queue interface {
	// HoldsPartialData reports whether the partial file of a download may still be resumed
	HoldsPartialData(id string) bool

	// Checkpoint saves the queue synchronously
	Checkpoint() error
}

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often orphaned partial files are removed
	CleanupInterval time.Duration

	// TempFileMaxAge is the minimum age of an orphaned partial file before removal
	TempFileMaxAge time.Duration

	// CheckpointInterval is how often the queue is saved including progress
	CheckpointInterval time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:    time.Hour,
		TempFileMaxAge:     24 * time.Hour,
		CheckpointInterval: 5 * time.Minute,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config *Config
	queue  Queue
	fs     port.FileSystem
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, queue Queue, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	return &Service{
		config: cfg,
		queue:  queue,
		fs:     fs,
		logger: logger.Named("maintenance"),
	}
}

// Start runs the maintenance loop and blocks until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("checkpoint_interval", s.config.CheckpointInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	checkpointTicker := time.NewTicker(s.config.CheckpointInterval)
	defer checkpointTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkpointTicker.C:
			s.checkpoint()
		case <-cleanupTicker.C:
			if err := s.Cleanup(ctx); err != nil {
				s.logger.Error("cleanup pass failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) checkpoint() {
	if err := s.queue.Checkpoint(); err != nil {
		s.logger.Error("failed to checkpoint queue", zap.Error(err))
	}
}

// Cleanup removes orphaned partial files and reports disk usage.
// Partial files of downloads that can still resume are kept regardless of age.
func (s *Service) Cleanup(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		count, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge, s.queue.HoldsPartialData)
		if err != nil {
			return fmt.Errorf("clean partial files: %w", err)
		}
		if count > 0 {
			s.logger.Info("cleaned up orphaned partial files", zap.Int("count", count))
		}
		return nil
	})

	g.Go(func() error {
		usage, err := s.fs.GetDiskUsage()
		if err != nil {
			return fmt.Errorf("disk usage: %w", err)
		}
		s.logger.Debug("disk usage",
			zap.String("free", humanize.IBytes(usage.Free)),
			zap.String("total", humanize.IBytes(usage.Total)),
			zap.Float64("used_pct", usage.UsedPct))
		return nil
	})

	return g.Wait()
}

// Package queue implements the persistent concurrent download queue.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// Config contains queue configuration
type Config struct {
	// MaxConcurrency bounds the number of downloading records
	MaxConcurrency int

	// StartupGrace delays the first scheduling pass after load
	StartupGrace time.Duration

	// InboxSize is the buffer of transport callback messages
	InboxSize int
}

// DefaultConfig returns default queue configuration
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency: 3,
		StartupGrace:   2 * time.Second,
		InboxSize:      1024,
	}
}

// Manager owns the download ledger, schedules transfers and persists state.
// Construct one with New and start it with Start.
type Manager struct {
	config    *Config
	transport port.Transport
	fs        port.FileSystem
	events    event.EventDispatcher
	logger    *zap.Logger

	ledger  *ledger
	persist *persister
	inbox   chan message

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	repo    port.DownloadRepository
}

// New creates a new Manager
func New(cfg *Config, transport port.Transport, repo port.DownloadRepository, fs port.FileSystem, events event.EventDispatcher, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}

	m := &Manager{
		config:    cfg,
		transport: transport,
		fs:        fs,
		events:    events,
		logger:    logger.Named("queue"),
		ledger:    newLedger(cfg.MaxConcurrency),
		inbox:     make(chan message, cfg.InboxSize),
		now:       time.Now,
		newID:     uuid.NewString,
		repo:      repo,
	}
	m.persist = newPersister(repo, m.snapshot, m.logger)
	return m
}

// Start loads the stored queue, starts the callback and persistence loops and
// schedules the first pass after the startup grace period
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("queue already started")
	}

	stored, err := m.repo.Load()
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	var reset int
	m.ledger.locked(func() {
		reset = m.ledger.load(stored, m.now())
	})

	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.started = true

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.inboxLoop(m.runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.persist.run(m.runCtx)
	}()

	m.logger.Info("queue started",
		zap.Int("downloads", len(stored)),
		zap.Int("reset_interrupted", reset),
		zap.Int("max_concurrency", m.config.MaxConcurrency),
		zap.Duration("startup_grace", m.config.StartupGrace))

	if reset > 0 {
		m.persist.request()
	}

	if m.config.StartupGrace <= 0 {
		go m.schedule()
		return nil
	}

	m.wg.Add(1)
	go func(runCtx context.Context) {
		defer m.wg.Done()
		timer := time.NewTimer(m.config.StartupGrace)
		defer timer.Stop()
		select {
		case <-runCtx.Done():
		case <-timer.C:
			m.schedule()
		}
	}(m.runCtx)

	return nil
}

// Close stops the background loops and writes a final snapshot
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	err := m.persist.flush()
	m.logger.Info("queue stopped")
	return err
}

func (m *Manager) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx == nil {
		return context.Background()
	}
	return m.runCtx
}

// OnEnteringBackground saves the queue synchronously without touching statuses
func (m *Manager) OnEnteringBackground() error {
	m.logger.Info("entering background, saving queue")
	return m.persist.flush()
}

// OnTerminating stops dispatching, returns downloading records to pending and
// saves synchronously so the next launch resumes them
func (m *Manager) OnTerminating() error {
	var events []event.DomainEvent
	m.ledger.locked(func() {
		m.ledger.terminating = true
		now := m.now()
		for _, e := range m.ledger.ordered(nil) {
			from := e.download.Status
			if e.download.ResetInterrupted(now) {
				e.detach()
				events = append(events, event.NewDownloadStatusChanged(e.download, from))
			}
		}
	})

	m.logger.Info("terminating, saving queue", zap.Int("interrupted", len(events)))
	m.emit(events)
	return m.persist.flush()
}

// Checkpoint writes the current snapshot synchronously, including progress
// that has not triggered a save
func (m *Manager) Checkpoint() error {
	return m.persist.flush()
}

// snapshot returns copies of all downloads in FIFO order
func (m *Manager) snapshot() []*domain.Download {
	var out []*domain.Download
	m.ledger.locked(func() {
		out = m.ledger.copies(nil)
	})
	return out
}

// emit dispatches events outside the ledger lock
func (m *Manager) emit(events []event.DomainEvent) {
	if len(events) == 0 {
		return
	}
	m.events.DispatchAll(events)
}

// changed persists, notifies and reschedules after a mutation
func (m *Manager) changed(events []event.DomainEvent) {
	m.persist.request()
	m.emit(events)
	m.schedule()
}

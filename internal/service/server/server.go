package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
	"github.com/vertextoedge/threadfetch/internal/service/queue"
)

// Queue is the download queue surface exposed over HTTP
type Queue interface {
	QueueBatch(items []queue.Request) ([]*domain.Download, error)
	Get(id string) (*domain.Download, error)
	All() []*domain.Download
	GetByStatus(status domain.Status) []*domain.Download
	GetByGroup(key string) []*domain.Download
	GetGroups() []domain.Group
	Stats() domain.QueueStats

	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
	Retry(id string) error
	Remove(id string) error

	PauseAll() (int, error)
	ResumeAll() (int, error)
	RetryAllFailed() (int, error)
	ClearCompleted() (int, error)
	ClearAll() (int, error)

	SetMaxConcurrency(n int)
}

// RequestRecorder receives per-request metrics
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8090",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server represents the control API server
type Server struct {
	config *Config
	queue  Queue
	store  port.Store
	fs     port.FileSystem
	logger *zap.Logger
	server *http.Server

	downloads *DownloadHandler
	files     *FileHandler
}

// New creates a new HTTP server. metrics may be nil to disable /metrics;
// recorder may be nil.
func New(cfg *Config, q Queue, store port.Store, fs port.FileSystem, metrics http.Handler, recorder RequestRecorder, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger = logger.Named("http")

	s := &Server{
		config: cfg,
		queue:  q,
		store:  store,
		fs:     fs,
		logger: logger,
	}
	s.downloads = NewDownloadHandler(q, fs, logger)
	s.files = NewFileHandler(q, fs, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/downloads", s.downloads.HandleList)
	api.HandleFunc("POST /api/downloads", s.downloads.HandleCreate)
	api.HandleFunc("GET /api/downloads/{id}", s.downloads.HandleGet)
	api.HandleFunc("DELETE /api/downloads/{id}", s.downloads.HandleRemove)
	api.HandleFunc("POST /api/downloads/{id}/{action}", s.downloads.HandleAction)
	api.HandleFunc("GET /api/groups", s.downloads.HandleGroups)
	api.HandleFunc("GET /api/stats", s.downloads.HandleStats)
	api.HandleFunc("POST /api/queue/{action}", s.downloads.HandleQueueAction)
	api.HandleFunc("PUT /api/queue/concurrency", s.downloads.HandleConcurrency)
	api.HandleFunc("GET /files/{id}", s.files.HandleDownload)

	var protected http.Handler = api
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		protected = BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)(api)
	}
	mux.Handle("/api/", protected)
	mux.Handle("/files/", protected)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      RequestIDMiddleware(LoggingMiddleware(logger, recorder)(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Queue storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps queue errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

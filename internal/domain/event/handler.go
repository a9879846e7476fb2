package event

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/vo"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadProgressed:
		h.logger.Debug("download progress",
			zap.String("download_id", e.DownloadID),
			zap.String("progress", vo.Progress(e.BytesDownloaded, e.TotalBytes)),
		)
	case DownloadStatusChanged:
		fields := []zap.Field{
			zap.String("download_id", e.DownloadID),
			zap.String("source_url", e.SourceURL),
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
		}
		switch e.To {
		case domain.StatusFailed:
			h.logger.Warn("download failed", append(fields,
				zap.String("error", e.ErrorMessage),
				zap.Int("retry_count", e.RetryCount),
			)...)
		case domain.StatusCompleted:
			h.logger.Info("download completed", append(fields,
				zap.String("size", vo.ByteSize(e.BytesDownloaded).String()),
			)...)
		default:
			h.logger.Debug("download status changed", fields...)
		}
	case QueueUpdated:
		h.logger.Debug("queue updated",
			zap.Int("added", e.Added),
			zap.Int("removed", e.Removed),
			zap.Int("total", e.Total),
		)
	case AllCompleted:
		h.logger.Info("all downloads finished",
			zap.Int("completed", e.Completed),
			zap.Int("failed", e.Failed),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{AllEvents}
}

// MetricsHandler keeps in-process counters derived from events
type MetricsHandler struct {
	completed     atomic.Int64
	failed        atomic.Int64
	paused        atomic.Int64
	cancelled     atomic.Int64
	bytesFinished atomic.Int64
	queueUpdates  atomic.Int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadStatusChanged:
		switch e.To {
		case domain.StatusCompleted:
			h.completed.Add(1)
			h.bytesFinished.Add(e.BytesDownloaded)
		case domain.StatusFailed:
			h.failed.Add(1)
		case domain.StatusPaused:
			h.paused.Add(1)
		case domain.StatusCancelled:
			h.cancelled.Add(1)
		}
	case QueueUpdated:
		h.queueUpdates.Add(1)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameDownloadStatusChanged,
		NameQueueUpdated,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"downloads_completed": h.completed.Load(),
		"downloads_failed":    h.failed.Load(),
		"downloads_paused":    h.paused.Load(),
		"downloads_cancelled": h.cancelled.Load(),
		"bytes_completed":     h.bytesFinished.Load(),
		"queue_updates":       h.queueUpdates.Load(),
	}
}

package event

import (
	"time"

	"github.com/vertextoedge/threadfetch/internal/domain"
)

// Event names
const (
	NameDownloadProgressed    = "download.progressed"
	NameDownloadStatusChanged = "download.status_changed"
	NameQueueUpdated          = "queue.updated"
	NameAllCompleted          = "queue.all_completed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// DownloadProgressed is raised when a transfer reports bytes written
type DownloadProgressed struct {
	BaseEvent
	DownloadID      string
	BytesDownloaded int64
	TotalBytes      int64
}

// EventName returns the event name
func (e DownloadProgressed) EventName() string {
	return NameDownloadProgressed
}

// NewDownloadProgressed creates a new DownloadProgressed event
func NewDownloadProgressed(id string, written, total int64) DownloadProgressed {
	return DownloadProgressed{
		BaseEvent:       BaseEvent{Timestamp: time.Now()},
		DownloadID:      id,
		BytesDownloaded: written,
		TotalBytes:      total,
	}
}

// DownloadStatusChanged is raised on every state machine transition
type DownloadStatusChanged struct {
	BaseEvent
	DownloadID      string
	SourceURL       string
	From            domain.Status
	To              domain.Status
	BytesDownloaded int64
	ErrorMessage    string
	RetryCount      int
}

// EventName returns the event name
func (e DownloadStatusChanged) EventName() string {
	return NameDownloadStatusChanged
}

// NewDownloadStatusChanged creates a new DownloadStatusChanged event from
// the record state after the transition
func NewDownloadStatusChanged(d *domain.Download, from domain.Status) DownloadStatusChanged {
	return DownloadStatusChanged{
		BaseEvent:       BaseEvent{Timestamp: time.Now()},
		DownloadID:      d.ID,
		SourceURL:       d.SourceURL,
		From:            from,
		To:              d.Status,
		BytesDownloaded: d.BytesDownloaded,
		ErrorMessage:    d.ErrorMessage,
		RetryCount:      d.RetryCount,
	}
}

// QueueUpdated is raised when records are added or removed
type QueueUpdated struct {
	BaseEvent
	Added   int
	Removed int
	Total   int
}

// EventName returns the event name
func (e QueueUpdated) EventName() string {
	return NameQueueUpdated
}

// NewQueueUpdated creates a new QueueUpdated event
func NewQueueUpdated(added, removed, total int) QueueUpdated {
	return QueueUpdated{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Added:     added,
		Removed:   removed,
		Total:     total,
	}
}

// AllCompleted is raised when no record remains pending or downloading
type AllCompleted struct {
	BaseEvent
	Completed int
	Failed    int
}

// EventName returns the event name
func (e AllCompleted) EventName() string {
	return NameAllCompleted
}

// NewAllCompleted creates a new AllCompleted event
func NewAllCompleted(completed, failed int) AllCompleted {
	return AllCompleted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Completed: completed,
		Failed:    failed,
	}
}

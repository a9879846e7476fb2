package telemetry

import (
	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
)

// EventHandler records queue events as metrics
type EventHandler struct {
	t *Telemetry
}

// NewEventHandler creates an EventHandler writing to t
func NewEventHandler(t *Telemetry) *EventHandler {
	return &EventHandler{t: t}
}

// Handle processes the event
func (h *EventHandler) Handle(e event.DomainEvent) error {
	switch ev := e.(type) {
	case event.DownloadStatusChanged:
		h.t.RecordStatusTransition(string(ev.To))
		if ev.To == domain.StatusDownloading {
			h.t.AddActiveDownloads(1)
		}
		if ev.From == domain.StatusDownloading && ev.To != domain.StatusDownloading {
			h.t.AddActiveDownloads(-1)
		}
		if ev.To == domain.StatusCompleted {
			h.t.RecordBytesCompleted(ev.BytesDownloaded)
		}
	case event.QueueUpdated:
		if ev.Added > 0 {
			h.t.RecordQueueUpdate("added")
		}
		if ev.Removed > 0 {
			h.t.RecordQueueUpdate("removed")
		}
	}
	return nil
}

// HandledEvents returns the event names this handler handles
func (h *EventHandler) HandledEvents() []string {
	return []string{event.NameDownloadStatusChanged, event.NameQueueUpdated}
}

package queue

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
	"github.com/vertextoedge/threadfetch/internal/domain/vo"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// Request describes one download to enqueue
type Request struct {
	SourceURL       string          `json:"source_url"`
	DestinationPath string          `json:"destination_path"`
	Metadata        domain.Metadata `json:"metadata"`
}

// Validate checks the source URL and destination path
func (r Request) Validate() error {
	u, err := url.Parse(r.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: source url %q must be an absolute http(s) url", domain.ErrInvalidInput, r.SourceURL)
	}
	if _, err := vo.NewRelativePath(r.DestinationPath); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// QueueDownload enqueues one download. It returns nil without error when a
// non-terminal download for the same URL already exists.
func (m *Manager) QueueDownload(sourceURL, destinationPath string, meta domain.Metadata) (*domain.Download, error) {
	req := Request{SourceURL: sourceURL, DestinationPath: destinationPath, Metadata: meta}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	created, err := m.enqueue([]Request{req})
	if err != nil || len(created) == 0 {
		return nil, err
	}
	return created[0], nil
}

// QueueBatch enqueues many downloads with one save and one scheduling pass.
// Invalid and duplicate items are skipped; only created downloads are returned.
func (m *Manager) QueueBatch(items []Request) ([]*domain.Download, error) {
	valid := make([]Request, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			m.logger.Warn("skipping batch item",
				zap.String("source_url", item.SourceURL),
				zap.Error(domain.NewSkippableError(err, "queue batch")))
			continue
		}
		valid = append(valid, item)
	}
	return m.enqueue(valid)
}

func (m *Manager) enqueue(items []Request) ([]*domain.Download, error) {
	if !m.isStarted() {
		return nil, domain.ErrNotRunning
	}

	var (
		created []*domain.Download
		total   int
		events  []event.DomainEvent
	)
	m.ledger.locked(func() {
		now := m.now()
		for _, item := range items {
			if m.ledger.findActiveByURL(item.SourceURL) != nil {
				m.logger.Debug("duplicate download suppressed",
					zap.String("source_url", item.SourceURL),
					zap.Error(domain.ErrSkipDuplicate))
				continue
			}
			dest, _ := vo.NewRelativePath(item.DestinationPath)
			d := domain.NewDownload(m.newID(), item.SourceURL, dest.String(), cloneMetadata(item.Metadata), now)
			m.ledger.insert(d)
			created = append(created, d.Clone())
		}
		total = len(m.ledger.entries)
		if len(created) > 0 {
			events = append(events, event.NewQueueUpdated(len(created), 0, total))
			events = append(events, m.ledger.settle()...)
		}
	})

	if len(created) == 0 {
		return nil, nil
	}
	m.changed(events)
	return created, nil
}

func cloneMetadata(meta domain.Metadata) domain.Metadata {
	if meta.Extra != nil {
		extra := make(map[string]string, len(meta.Extra))
		for k, v := range meta.Extra {
			extra[k] = v
		}
		meta.Extra = extra
	}
	return meta
}

// transition applies fn to one download under the lock. It returns
// ErrNotFound for unknown ids; an inapplicable transition is a silent no-op.
func (m *Manager) transition(id string, fn func(e *entry) (applied bool, cancel port.TransferHandle, wantToken bool)) error {
	if !m.isStarted() {
		return domain.ErrNotRunning
	}

	var (
		found     bool
		cancel    port.TransferHandle
		wantToken bool
		events    []event.DomainEvent
	)
	m.ledger.locked(func() {
		e, ok := m.ledger.entries[id]
		if !ok {
			return
		}
		found = true
		from := e.download.Status
		var applied bool
		applied, cancel, wantToken = fn(e)
		if !applied {
			return
		}
		if e.download.Status != from {
			events = append(events, event.NewDownloadStatusChanged(e.download, from))
		}
		events = append(events, m.ledger.settle()...)
	})

	if !found {
		return fmt.Errorf("download %s: %w", id, domain.ErrNotFound)
	}
	if cancel != nil {
		m.transport.Cancel(cancel, wantToken)
	}
	if len(events) > 0 || cancel != nil {
		m.changed(events)
	}
	return nil
}

// Pause pauses a pending download or asks the transport to stop a running
// one with a resume token
func (m *Manager) Pause(id string) error {
	return m.transition(id, func(e *entry) (bool, port.TransferHandle, bool) {
		if !e.download.RequestPause(m.now()) {
			return false, nil, false
		}
		return true, e.handle, true
	})
}

// Resume puts a paused download back in the queue; a failed one is retried
func (m *Manager) Resume(id string) error {
	return m.transition(id, func(e *entry) (bool, port.TransferHandle, bool) {
		if m.duplicateRevival(e) {
			return false, nil, false
		}
		return e.download.Resume(), nil, false
	})
}

// Retry restarts a failed or cancelled download from zero. A cancelled
// download whose URL was queued again in the meantime stays cancelled.
func (m *Manager) Retry(id string) error {
	return m.transition(id, func(e *entry) (bool, port.TransferHandle, bool) {
		if m.duplicateRevival(e) {
			return false, nil, false
		}
		return e.download.Retry(), nil, false
	})
}

// duplicateRevival reports whether bringing e back would give its URL a
// second live record; callers hold the lock
func (m *Manager) duplicateRevival(e *entry) bool {
	if !m.ledger.claimedElsewhere(e) {
		return false
	}
	m.logger.Debug("download not revived",
		zap.String("download_id", e.download.ID),
		zap.String("source_url", e.download.SourceURL),
		zap.Error(domain.ErrSkipDuplicate))
	return true
}

// Cancel stops a download without keeping partial data
func (m *Manager) Cancel(id string) error {
	return m.transition(id, func(e *entry) (bool, port.TransferHandle, bool) {
		wasDownloading := e.download.Status == domain.StatusDownloading
		if !e.download.MarkCancelled() {
			return false, nil, false
		}
		var h port.TransferHandle
		if wasDownloading {
			h = e.detach()
		}
		return true, h, false
	})
}

// Remove deletes a download, cancelling its transfer first
func (m *Manager) Remove(id string) error {
	if !m.isStarted() {
		return domain.ErrNotRunning
	}

	var (
		found  bool
		cancel port.TransferHandle
		events []event.DomainEvent
	)
	m.ledger.locked(func() {
		e, ok := m.ledger.entries[id]
		if !ok {
			return
		}
		found = true
		cancel = e.detach()
		delete(m.ledger.entries, id)
		events = append(events, event.NewQueueUpdated(0, 1, len(m.ledger.entries)))
		events = append(events, m.ledger.settle()...)
	})

	if !found {
		return fmt.Errorf("download %s: %w", id, domain.ErrNotFound)
	}
	if cancel != nil {
		m.transport.Cancel(cancel, false)
	}
	m.changed(events)
	return nil
}

// bulk applies fn to every download in FIFO order and returns the number changed
func (m *Manager) bulk(fn func(e *entry) (applied bool, cancel port.TransferHandle)) (int, error) {
	if !m.isStarted() {
		return 0, domain.ErrNotRunning
	}

	var (
		count   int
		cancels []port.TransferHandle
		events  []event.DomainEvent
	)
	m.ledger.locked(func() {
		for _, e := range m.ledger.ordered(nil) {
			from := e.download.Status
			applied, h := fn(e)
			if !applied {
				continue
			}
			count++
			if h != nil {
				cancels = append(cancels, h)
			}
			if e.download.Status != from {
				events = append(events, event.NewDownloadStatusChanged(e.download, from))
			}
		}
		if count > 0 {
			events = append(events, m.ledger.settle()...)
		}
	})

	for _, h := range cancels {
		m.transport.Cancel(h, true)
	}
	if count > 0 {
		m.changed(events)
	}
	return count, nil
}

// PauseAll pauses every pending and downloading record
func (m *Manager) PauseAll() (int, error) {
	return m.bulk(func(e *entry) (bool, port.TransferHandle) {
		if !e.download.RequestPause(m.now()) {
			return false, nil
		}
		return true, e.handle
	})
}

// ResumeAll puts every paused record back in the queue
func (m *Manager) ResumeAll() (int, error) {
	return m.bulk(func(e *entry) (bool, port.TransferHandle) {
		if e.download.Status != domain.StatusPaused {
			return false, nil
		}
		return e.download.Resume(), nil
	})
}

// RetryAllFailed retries every failed record
func (m *Manager) RetryAllFailed() (int, error) {
	return m.bulk(func(e *entry) (bool, port.TransferHandle) {
		if e.download.Status != domain.StatusFailed {
			return false, nil
		}
		return e.download.Retry(), nil
	})
}

// ClearCompleted removes every completed record
func (m *Manager) ClearCompleted() (int, error) {
	return m.clear(func(d *domain.Download) bool {
		return d.Status == domain.StatusCompleted
	})
}

// ClearAll cancels in-flight transfers and removes every record
func (m *Manager) ClearAll() (int, error) {
	return m.clear(nil)
}

func (m *Manager) clear(match func(*domain.Download) bool) (int, error) {
	if !m.isStarted() {
		return 0, domain.ErrNotRunning
	}

	var (
		removed int
		cancels []port.TransferHandle
		events  []event.DomainEvent
	)
	m.ledger.locked(func() {
		for id, e := range m.ledger.entries {
			if match != nil && !match(e.download) {
				continue
			}
			if h := e.detach(); h != nil {
				cancels = append(cancels, h)
			}
			delete(m.ledger.entries, id)
			removed++
		}
		if removed > 0 {
			events = append(events, event.NewQueueUpdated(0, removed, len(m.ledger.entries)))
			events = append(events, m.ledger.settle()...)
		}
	})

	for _, h := range cancels {
		m.transport.Cancel(h, false)
	}
	if removed > 0 {
		m.changed(events)
	}
	return removed, nil
}

// SetMaxConcurrency changes the transfer bound for subsequent passes.
// Running transfers are never preempted. Values below one are raised to one.
func (m *Manager) SetMaxConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	m.ledger.locked(func() {
		m.ledger.maxConcurrency = n
	})
	m.logger.Info("max concurrency changed", zap.Int("max_concurrency", n))
	m.schedule()
}

package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
)

type msgKind int

const (
	msgProgress msgKind = iota
	msgComplete
	msgFailure
)

// message carries one transport callback to the manager's inbox loop
type message struct {
	kind    msgKind
	id      string
	attempt uint64

	written int64
	total   int64
	result  domain.TransferResult
	err     error
	token   []byte
}

// attemptObserver binds transport callbacks to one dispatch attempt and
// forwards them as messages
type attemptObserver struct {
	m       *Manager
	id      string
	attempt uint64
}

func (o *attemptObserver) OnProgress(written, total int64) {
	o.m.post(message{kind: msgProgress, id: o.id, attempt: o.attempt, written: written, total: total})
}

func (o *attemptObserver) OnComplete(result domain.TransferResult) {
	o.m.post(message{kind: msgComplete, id: o.id, attempt: o.attempt, result: result})
}

func (o *attemptObserver) OnFailure(err error, token []byte) {
	o.m.post(message{kind: msgFailure, id: o.id, attempt: o.attempt, err: err, token: token})
}

// post enqueues a message, dropping it once the manager has stopped
func (m *Manager) post(msg message) {
	ctx := m.context()
	select {
	case m.inbox <- msg:
	case <-ctx.Done():
	}
}

// inboxLoop applies transport callbacks one at a time
func (m *Manager) inboxLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			switch msg.kind {
			case msgProgress:
				m.applyProgress(msg)
			case msgComplete:
				m.applyCompletion(msg)
			case msgFailure:
				m.applyFailure(msg)
			}
		}
	}
}

// current returns the entry if msg still belongs to its running attempt;
// callers hold the lock
func (m *Manager) current(msg message) (*entry, bool) {
	e, ok := m.ledger.entries[msg.id]
	if !ok || e.attempt != msg.attempt || e.download.Status != domain.StatusDownloading {
		return nil, false
	}
	return e, true
}

// live is current, but also rejects outcomes that arrive once the manager is
// shutting down. Transfers torn down by shutdown report failures that must not
// reach the ledger; the interrupted records stay resumable.
func (m *Manager) live(ctx context.Context, msg message) (*entry, bool) {
	if m.ledger.terminating || ctx.Err() != nil {
		return nil, false
	}
	return m.current(msg)
}

func (m *Manager) applyProgress(msg message) {
	var ev event.DomainEvent
	m.ledger.locked(func() {
		e, ok := m.current(msg)
		if !ok || !e.download.UpdateProgress(msg.written, msg.total) {
			return
		}
		ev = event.NewDownloadProgressed(e.download.ID, e.download.BytesDownloaded, e.download.TotalBytes)
	})
	if ev != nil {
		m.events.Dispatch(ev)
	}
}

// applyCompletion moves the finished file into place outside the lock, then
// re-checks that the attempt is still current before recording the outcome
func (m *Manager) applyCompletion(msg message) {
	ctx := m.context()
	var (
		destination string
		ok          bool
	)
	m.ledger.locked(func() {
		var e *entry
		if e, ok = m.live(ctx, msg); ok {
			destination = e.download.DestinationPath
			e.handle = nil
		}
	})
	if !ok {
		return
	}

	finalPath, moveErr := m.fs.MoveIntoPlace(msg.result.TempPath, destination)

	var events []event.DomainEvent
	m.ledger.locked(func() {
		e, ok := m.live(ctx, msg)
		if !ok {
			return
		}
		e.detach()
		d := e.download
		from := d.Status
		if moveErr != nil {
			d.MarkFailed(fmt.Sprintf("download finished but could not be saved: %v", moveErr))
		} else {
			if len(msg.result.Validators) > 0 {
				d.Validators = msg.result.Validators
			}
			d.MarkCompleted(m.now(), msg.result.BytesWritten)
		}
		events = append(events, event.NewDownloadStatusChanged(d, from))
		events = append(events, m.ledger.settle()...)
	})
	if len(events) == 0 {
		// Removed or cancelled while the file was moving
		return
	}

	if moveErr != nil {
		m.logger.Error("failed to move download into place",
			zap.String("download_id", msg.id),
			zap.String("destination", destination),
			zap.Error(moveErr))
	} else {
		m.logger.Debug("download saved",
			zap.String("download_id", msg.id),
			zap.String("path", finalPath))
	}
	m.changed(events)
}

// applyFailure classifies a failed attempt. Only an explicit pause request
// turns it into a pause; the presence of a resume token alone does not.
func (m *Manager) applyFailure(msg message) {
	ctx := m.context()
	var events []event.DomainEvent
	m.ledger.locked(func() {
		e, ok := m.live(ctx, msg)
		if !ok {
			return
		}
		e.detach()
		d := e.download
		from := d.Status
		if d.PauseRequested {
			d.MarkPaused(m.now(), msg.token)
		} else {
			d.MarkFailed(failureMessage(msg.err))
		}
		events = append(events, event.NewDownloadStatusChanged(d, from))
		events = append(events, m.ledger.settle()...)
	})
	if len(events) == 0 {
		return
	}
	m.changed(events)
}

func failureMessage(err error) string {
	switch {
	case err == nil:
		return "transfer failed"
	case errors.Is(err, domain.ErrTransferCancelled):
		return "transfer was cancelled"
	default:
		return err.Error()
	}
}

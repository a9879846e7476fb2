package queue

import (
	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// dispatch is a transfer reserved under the ledger lock and started after it
type dispatch struct {
	id      string
	attempt uint64
	req     port.TransferRequest
}

// schedule fills free execution slots with the oldest pending downloads.
// Slots are reserved under the lock, so concurrent passes never exceed the bound.
func (m *Manager) schedule() {
	if !m.isStarted() || m.context().Err() != nil {
		return
	}

	var (
		starts []dispatch
		events []event.DomainEvent
	)
	m.ledger.locked(func() {
		l := m.ledger
		if l.terminating {
			return
		}
		slots := l.maxConcurrency - l.countStatus(domain.StatusDownloading)
		if slots <= 0 {
			return
		}

		now := m.now()
		for _, e := range l.ordered(isPending) {
			if slots == 0 {
				break
			}
			d := e.download
			if !d.MarkDownloading(now) {
				continue
			}
			slots--
			l.nextAttempt++
			e.attempt = l.nextAttempt
			e.handle = nil

			starts = append(starts, dispatch{
				id:      d.ID,
				attempt: e.attempt,
				req:     transferRequest(d),
			})
			events = append(events, event.NewDownloadStatusChanged(d, domain.StatusPending))
		}
	})

	if len(starts) == 0 {
		return
	}

	m.persist.request()
	m.emit(events)
	for _, s := range starts {
		m.start(s)
	}
}

func isPending(d *domain.Download) bool {
	return d.Status == domain.StatusPending
}

// transferRequest copies the fields a transport needs. A resume token takes
// precedence over a byte offset.
func transferRequest(d *domain.Download) port.TransferRequest {
	req := port.TransferRequest{
		DownloadID: d.ID,
		SourceURL:  d.SourceURL,
	}
	if len(d.Validators) > 0 {
		req.Validators = make(map[string]string, len(d.Validators))
		for k, v := range d.Validators {
			req.Validators[k] = v
		}
	}
	switch {
	case len(d.ResumeToken) > 0:
		req.ResumeToken = append([]byte(nil), d.ResumeToken...)
	case d.BytesDownloaded > 0:
		req.RangeOffset = d.BytesDownloaded
	}
	return req
}

// start hands a reserved dispatch to the transport and binds the handle.
// If the entry moved on while the transport was starting, the transfer is
// cancelled right away.
func (m *Manager) start(s dispatch) {
	obs := &attemptObserver{m: m, id: s.id, attempt: s.attempt}

	h, err := m.transport.Start(m.context(), s.req, obs)
	if err != nil {
		m.logger.Warn("failed to start transfer", zap.String("download_id", s.id), zap.Error(err))
		m.applyFailure(message{kind: msgFailure, id: s.id, attempt: s.attempt, err: err})
		return
	}

	var (
		cancel    bool
		wantToken bool
	)
	m.ledger.locked(func() {
		e, ok := m.ledger.entries[s.id]
		if !ok || e.attempt != s.attempt {
			cancel = true
			return
		}
		e.handle = h
		if e.download.PauseRequested {
			cancel, wantToken = true, true
		}
	})

	if cancel {
		m.transport.Cancel(h, wantToken)
	}
}

package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// entry is the ledger's private state for one download
type entry struct {
	download *domain.Download
	seq      uint64

	// attempt identifies the transfer currently bound to this entry; zero when none.
	// Callbacks carrying any other attempt are stale.
	attempt uint64
	handle  port.TransferHandle
}

// ledger is the authoritative in-memory set of downloads. All access goes
// through locked, which releases the mutex on every exit path.
type ledger struct {
	mu             sync.Mutex
	entries        map[string]*entry
	nextSeq        uint64
	nextAttempt    uint64
	maxConcurrency int
	terminating    bool
	hadActive      bool
}

func newLedger(maxConcurrency int) *ledger {
	return &ledger{
		entries:        make(map[string]*entry),
		maxConcurrency: maxConcurrency,
	}
}

// locked runs fn while holding the ledger lock
func (l *ledger) locked(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

// insert adds a download; callers hold the lock
func (l *ledger) insert(d *domain.Download) *entry {
	l.nextSeq++
	e := &entry{download: d, seq: l.nextSeq}
	l.entries[d.ID] = e
	return e
}

// findActiveByURL returns the non-terminal entry for sourceURL, if any
func (l *ledger) findActiveByURL(sourceURL string) *entry {
	for _, e := range l.entries {
		if e.download.SourceURL == sourceURL && !e.download.Status.IsTerminal() {
			return e
		}
	}
	return nil
}

// claimedElsewhere reports whether another non-terminal entry holds the
// source URL of e
func (l *ledger) claimedElsewhere(e *entry) bool {
	for _, other := range l.entries {
		if other != e && other.download.SourceURL == e.download.SourceURL && !other.download.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// ordered returns entries matching keep in FIFO order
func (l *ledger) ordered(keep func(*domain.Download) bool) []*entry {
	out := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		if keep == nil || keep(e.download) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.download.CreatedAt.Equal(b.download.CreatedAt) {
			return a.download.CreatedAt.Before(b.download.CreatedAt)
		}
		return a.seq < b.seq
	})
	return out
}

// copies returns clones of entries matching keep in FIFO order
func (l *ledger) copies(keep func(*domain.Download) bool) []*domain.Download {
	entries := l.ordered(keep)
	out := make([]*domain.Download, len(entries))
	for i, e := range entries {
		out[i] = e.download.Clone()
	}
	return out
}

func (l *ledger) countStatus(status domain.Status) int {
	n := 0
	for _, e := range l.entries {
		if e.download.Status == status {
			n++
		}
	}
	return n
}

// detach unbinds the current transfer and returns its handle
func (e *entry) detach() port.TransferHandle {
	h := e.handle
	e.handle = nil
	e.attempt = 0
	return h
}

// settle reports AllCompleted when the queue just ran out of active work
func (l *ledger) settle() []event.DomainEvent {
	active, completed, failed := false, 0, 0
	for _, e := range l.entries {
		switch {
		case e.download.Status.IsActive():
			active = true
		case e.download.Status == domain.StatusCompleted:
			completed++
		case e.download.Status == domain.StatusFailed:
			failed++
		}
	}

	var events []event.DomainEvent
	if l.hadActive && !active {
		events = append(events, event.NewAllCompleted(completed, failed))
	}
	l.hadActive = active
	return events
}

// load replaces the ledger contents with stored downloads. Records left
// downloading by a previous process go back to pending.
func (l *ledger) load(downloads []*domain.Download, now time.Time) (reset int) {
	l.entries = make(map[string]*entry, len(downloads))
	for _, d := range downloads {
		d.PauseRequested = false
		if d.ResetInterrupted(now) {
			reset++
		}
		l.insert(d)
	}
	l.hadActive = false
	for _, e := range l.entries {
		if e.download.Status.IsActive() {
			l.hadActive = true
			break
		}
	}
	return reset
}

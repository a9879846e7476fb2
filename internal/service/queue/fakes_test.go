package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/event"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// memRepository implements port.DownloadRepository in memory
type memRepository struct {
	mu      sync.Mutex
	stored  []*domain.Download
	saves   int
	loadErr error
	saveErr error
}

func (r *memRepository) Load() ([]*domain.Download, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	out := make([]*domain.Download, len(r.stored))
	for i, d := range r.stored {
		out[i] = d.Clone()
	}
	return out, nil
}

func (r *memRepository) Save(downloads []*domain.Download) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.stored = make([]*domain.Download, len(downloads))
	for i, d := range downloads {
		r.stored[i] = d.Clone()
	}
	r.saves++
	return nil
}

func (r *memRepository) saved(id string) *domain.Download {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.stored {
		if d.ID == id {
			return d.Clone()
		}
	}
	return nil
}

func (r *memRepository) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type fakeTransfer struct {
	id  string
	req port.TransferRequest
	obs port.TransferObserver
}

func (t *fakeTransfer) ID() string { return t.id }

type cancelCall struct {
	downloadID string
	wantToken  bool
}

// fakeTransport records starts and cancels; tests drive the callbacks
type fakeTransport struct {
	mu        sync.Mutex
	seq       int
	transfers []*fakeTransfer
	cancels   []cancelCall
	startErr  error
}

func (f *fakeTransport) Start(_ context.Context, req port.TransferRequest, obs port.TransferObserver) (port.TransferHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.seq++
	t := &fakeTransfer{id: fmt.Sprintf("t%d", f.seq), req: req, obs: obs}
	f.transfers = append(f.transfers, t)
	return t, nil
}

func (f *fakeTransport) Cancel(h port.TransferHandle, wantResumeToken bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transfers {
		if t.id == h.ID() {
			f.cancels = append(f.cancels, cancelCall{downloadID: t.req.DownloadID, wantToken: wantResumeToken})
			return
		}
	}
}

func (f *fakeTransport) started() []*fakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransfer(nil), f.transfers...)
}

func (f *fakeTransport) cancelled() []cancelCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cancelCall(nil), f.cancels...)
}

// latest returns the most recent transfer started for a download
func (f *fakeTransport) latest(t *testing.T, downloadID string) *fakeTransfer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.transfers) - 1; i >= 0; i-- {
		if f.transfers[i].req.DownloadID == downloadID {
			return f.transfers[i]
		}
	}
	t.Fatalf("no transfer started for %s", downloadID)
	return nil
}

// eventLog records every dispatched event
type eventLog struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (l *eventLog) Handle(e event.DomainEvent) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) HandledEvents() []string { return []string{event.AllEvents} }

func (l *eventLog) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

func (l *eventLog) statuses(id string) []domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Status
	for _, e := range l.events {
		if sc, ok := e.(event.DownloadStatusChanged); ok && sc.DownloadID == id {
			out = append(out, sc.To)
		}
	}
	return out
}

type harness struct {
	m         *Manager
	transport *fakeTransport
	repo      *memRepository
	fs        *filesystem.Manager
	log       *eventLog
}

// newHarness builds a started manager with fakes. Clock ticks one millisecond
// per reading so creation order is strict. Without an explicit grace period
// the first pass is deferred, so every dispatch happens on the caller's goroutine.
func newHarness(t *testing.T, cfg *Config, repo *memRepository) *harness {
	t.Helper()
	return newHarnessContext(t, context.Background(), cfg, repo)
}

// newHarnessContext is newHarness with the context the manager runs under
func newHarnessContext(t *testing.T, ctx context.Context, cfg *Config, repo *memRepository) *harness {
	t.Helper()
	if cfg == nil {
		cfg = &Config{MaxConcurrency: 3}
	}
	if cfg.StartupGrace == 0 {
		cfg.StartupGrace = time.Hour
	}
	if repo == nil {
		repo = &memRepository{}
	}
	fs, err := filesystem.NewManager(t.TempDir(), "")
	require.NoError(t, err)

	h := &harness{transport: &fakeTransport{}, repo: repo, fs: fs, log: &eventLog{}}
	dispatcher := event.NewInMemoryDispatcher(false)
	dispatcher.Subscribe(h.log)

	h.m = New(cfg, h.transport, repo, fs, dispatcher, zap.NewNop())

	var clockMu sync.Mutex
	clock := time.Unix(1700000000, 0)
	h.m.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	var idSeq int
	var idMu sync.Mutex
	h.m.newID = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		idSeq++
		return fmt.Sprintf("dl-%d", idSeq)
	}

	require.NoError(t, h.m.Start(ctx))
	t.Cleanup(func() { h.m.Close() })
	return h
}

func (h *harness) status(t *testing.T, id string) domain.Status {
	t.Helper()
	d, err := h.m.Get(id)
	require.NoError(t, err)
	return d.Status
}

func (h *harness) waitStatus(t *testing.T, id string, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		d, err := h.m.Get(id)
		return err == nil && d.Status == want
	}, 2*time.Second, 2*time.Millisecond, "download %s never reached %s", id, want)
}

func (h *harness) enqueue(t *testing.T, n int) []*domain.Download {
	t.Helper()
	items := make([]Request, n)
	for i := range items {
		items[i] = Request{
			SourceURL:       fmt.Sprintf("https://i.example.com/%d.jpg", i),
			DestinationPath: fmt.Sprintf("board/123/%d.jpg", i),
			Metadata:        domain.Metadata{Collection: "board", Group: "123", Filename: fmt.Sprintf("%d.jpg", i)},
		}
	}
	created, err := h.m.QueueBatch(items)
	require.NoError(t, err)
	require.Len(t, created, n)
	return created
}

package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// persister writes ledger snapshots in the background. Requests made while a
// write is running coalesce into one follow-up write.
type persister struct {
	repo     port.DownloadRepository
	snapshot func() []*domain.Download
	logger   *zap.Logger

	trigger chan struct{}
	writeMu sync.Mutex
}

func newPersister(repo port.DownloadRepository, snapshot func() []*domain.Download, logger *zap.Logger) *persister {
	return &persister{
		repo:     repo,
		snapshot: snapshot,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// request schedules an asynchronous save without blocking
func (p *persister) request() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// run serves save requests until ctx is cancelled
func (p *persister) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.trigger:
			_ = p.flush()
		}
	}
}

// flush writes the current snapshot synchronously. It waits for any write in
// flight and captures the snapshot only once it owns the store.
func (p *persister) flush() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	snap := p.snapshot()
	if err := p.repo.Save(snap); err != nil {
		p.logger.Error("failed to save queue", zap.Int("downloads", len(snap)), zap.Error(err))
		return err
	}
	p.logger.Debug("queue saved", zap.Int("downloads", len(snap)))
	return nil
}

package queue

import (
	"fmt"

	"github.com/vertextoedge/threadfetch/internal/domain"
)

// Get returns a copy of one download
func (m *Manager) Get(id string) (*domain.Download, error) {
	var out *domain.Download
	m.ledger.locked(func() {
		if e, ok := m.ledger.entries[id]; ok {
			out = e.download.Clone()
		}
	})
	if out == nil {
		return nil, fmt.Errorf("download %s: %w", id, domain.ErrNotFound)
	}
	return out, nil
}

// All returns copies of every download in queue order
func (m *Manager) All() []*domain.Download {
	return m.snapshot()
}

// GetByStatus returns copies of downloads with the given status in queue order
func (m *Manager) GetByStatus(status domain.Status) []*domain.Download {
	var out []*domain.Download
	m.ledger.locked(func() {
		out = m.ledger.copies(func(d *domain.Download) bool {
			return d.Status == status
		})
	})
	return out
}

// GetByGroup returns copies of downloads whose group key matches
func (m *Manager) GetByGroup(key string) []*domain.Download {
	var out []*domain.Download
	m.ledger.locked(func() {
		out = m.ledger.copies(func(d *domain.Download) bool {
			return d.Metadata.GroupKey() == key
		})
	})
	return out
}

// GetGroups aggregates all downloads by group key
func (m *Manager) GetGroups() []domain.Group {
	return domain.BuildGroups(m.snapshot())
}

// Stats returns per-status counts and byte totals
func (m *Manager) Stats() domain.QueueStats {
	var stats domain.QueueStats
	m.ledger.locked(func() {
		for _, e := range m.ledger.entries {
			stats.Add(e.download)
		}
		stats.MaxConcurrency = m.ledger.maxConcurrency
	})
	return stats
}

// MaxConcurrency returns the current transfer bound
func (m *Manager) MaxConcurrency() int {
	var n int
	m.ledger.locked(func() {
		n = m.ledger.maxConcurrency
	})
	return n
}

// HoldsPartialData reports whether a partial file for id may still be resumed
func (m *Manager) HoldsPartialData(id string) bool {
	var keep bool
	m.ledger.locked(func() {
		if e, ok := m.ledger.entries[id]; ok {
			switch e.download.Status {
			case domain.StatusPending, domain.StatusDownloading, domain.StatusPaused:
				keep = true
			}
		}
	})
	return keep
}

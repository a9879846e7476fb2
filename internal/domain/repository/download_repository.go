package repository

import (
	"github.com/vertextoedge/threadfetch/internal/domain"
)

// DownloadRepository persists the full set of download records as one snapshot
type DownloadRepository interface {
	// Load returns every stored record in insertion order
	// A store that was never written returns an empty slice
	Load() ([]*domain.Download, error)

	// Save atomically replaces the stored snapshot
	Save(downloads []*domain.Download) error
}

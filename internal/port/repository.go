package port

import (
	"github.com/vertextoedge/threadfetch/internal/domain/repository"
)

// DownloadRepository is an alias to the domain repository interface
type DownloadRepository = repository.DownloadRepository

// Store is an alias to the domain repository interface
type Store = repository.Store

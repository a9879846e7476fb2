package repository

// Store is a DownloadRepository backed by a closable resource
type Store interface {
	DownloadRepository

	// Close releases the underlying resource
	Close() error

	// Ping checks that the store is reachable
	Ping() error
}

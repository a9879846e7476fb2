package port

import (
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  `json:"total"`    // Total disk space in bytes
	Used    uint64  `json:"used"`     // Used disk space in bytes
	Free    uint64  `json:"free"`     // Free disk space in bytes
	UsedPct float64 `json:"used_pct"` // Used percentage (0-100)
}

// FileSystem defines the local storage operations of the download queue
type FileSystem interface {
	// RootDir returns the download root directory
	RootDir() string

	// TempDir returns the directory holding partial transfers
	TempDir() string

	// Resolve validates a destination path and returns its absolute location
	Resolve(destinationPath string) (string, error)

	// MoveIntoPlace moves a finished temp file to its destination, creating
	// parent directories and replacing any stale file
	// Returns the final absolute path
	MoveIntoPlace(tempPath, destinationPath string) (string, error)

	// FileExists checks if a file exists under the root
	FileExists(path string) bool

	// GetTempFileInfo returns size and modification time of a temp file
	// Returns (0, zero time, nil) if the file doesn't exist
	GetTempFileInfo(tempPath string) (int64, time.Time, error)

	// DeleteTempFile removes a temporary file
	DeleteTempFile(tempPath string) error

	// GetDiskUsage returns disk usage statistics for the root
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes partial files older than olderThan whose name
	// is not accepted by keep. Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration, keep func(name string) bool) (int, error)
}

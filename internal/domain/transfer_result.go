package domain

// TransferResult represents the outcome of a finished transfer
type TransferResult struct {
	// TempPath is the local file holding the transferred bytes
	TempPath string

	// BytesWritten is the total size of the file at TempPath
	BytesWritten int64

	// Resumed indicates whether the transfer continued a previous attempt
	Resumed bool

	// ResumedFrom is the byte position from which the transfer was resumed
	ResumedFrom int64

	// Validators are revalidation tags reported by the server (etag, last_modified)
	Validators map[string]string
}

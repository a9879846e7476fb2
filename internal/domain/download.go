package domain

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a Download.
type Status string

// Download status constants
const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// UnknownTotal marks a download whose size is not known until the first response.
const UnknownTotal int64 = -1

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidInput
}

// IsTerminal reports whether a new download for the same URL may be queued.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the download still has work ahead of it.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDownloading
}

// Metadata carries classification tags supplied by the caller.
// It is only used for grouping and display.
type Metadata struct {
	Collection string            `json:"collection,omitempty"`
	Group      string            `json:"group,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	MediaKind  string            `json:"media_kind,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// UngroupedKey is the group key of downloads without group or collection tags.
const UngroupedKey = "ungrouped"

// GroupKey returns the key used to aggregate downloads into groups.
func (m Metadata) GroupKey() string {
	switch {
	case m.Group != "":
		return m.Group
	case m.Collection != "":
		return m.Collection
	default:
		return UngroupedKey
	}
}

// Download represents a single queued transfer.
type Download struct {
	ID              string   `json:"id"`
	SourceURL       string   `json:"source_url"`
	DestinationPath string   `json:"destination_path"`
	Metadata        Metadata `json:"metadata"`

	// State
	Status          Status `json:"status"`
	BytesDownloaded int64  `json:"bytes_downloaded"`
	TotalBytes      int64  `json:"total_bytes"`
	ErrorMessage    string `json:"error_message,omitempty"`
	RetryCount      int    `json:"retry_count"`

	// Resume support
	ResumeToken []byte            `json:"resume_token,omitempty"`
	Validators  map[string]string `json:"validators,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`

	// PauseRequested records caller intent while a pause-initiated cancel is in flight.
	PauseRequested bool `json:"-"`
}

// NewDownload creates a pending download.
func NewDownload(id, sourceURL, destinationPath string, meta Metadata, now time.Time) *Download {
	return &Download{
		ID:              id,
		SourceURL:       sourceURL,
		DestinationPath: destinationPath,
		Metadata:        meta,
		Status:          StatusPending,
		TotalBytes:      UnknownTotal,
		CreatedAt:       now,
	}
}

// Progress returns the completion ratio in [0, 1].
func (d *Download) Progress() float64 {
	if d.Status == StatusCompleted {
		return 1
	}
	if d.TotalBytes <= 0 {
		return 0
	}
	p := float64(d.BytesDownloaded) / float64(d.TotalBytes)
	if p > 1 {
		return 1
	}
	return p
}

// MarkDownloading moves a pending download into the downloading state.
func (d *Download) MarkDownloading(now time.Time) bool {
	if d.Status != StatusPending {
		return false
	}
	d.Status = StatusDownloading
	d.StartedAt = &now
	d.PauseRequested = false
	return true
}

// UpdateProgress records transfer progress. A negative total leaves the known total untouched.
func (d *Download) UpdateProgress(written, total int64) bool {
	if d.Status != StatusDownloading {
		return false
	}
	if total >= 0 {
		d.TotalBytes = total
	}
	d.BytesDownloaded = written
	if d.TotalBytes >= 0 && d.BytesDownloaded > d.TotalBytes {
		d.BytesDownloaded = d.TotalBytes
	}
	return true
}

// MarkCompleted finishes a downloading record. written is used when the total was never learned.
func (d *Download) MarkCompleted(now time.Time, written int64) bool {
	if d.Status != StatusDownloading {
		return false
	}
	if d.TotalBytes < 0 || written > d.TotalBytes {
		d.TotalBytes = written
	}
	d.BytesDownloaded = d.TotalBytes
	d.Status = StatusCompleted
	d.CompletedAt = &now
	d.ErrorMessage = ""
	d.ResumeToken = nil
	d.PauseRequested = false
	return true
}

// MarkFailed records a transfer or storage failure.
func (d *Download) MarkFailed(msg string) bool {
	if d.Status != StatusDownloading {
		return false
	}
	d.Status = StatusFailed
	d.ErrorMessage = msg
	d.PauseRequested = false
	return true
}

// RequestPause flags a downloading record so the pending cancellation is
// classified as a pause. Pending records pause immediately.
func (d *Download) RequestPause(now time.Time) bool {
	switch d.Status {
	case StatusDownloading:
		if d.PauseRequested {
			return false
		}
		d.PauseRequested = true
		return true
	case StatusPending:
		d.Status = StatusPaused
		d.PausedAt = &now
		return true
	default:
		return false
	}
}

// MarkPaused completes a pause of a downloading record. Without a token the
// byte offset becomes the resume point.
func (d *Download) MarkPaused(now time.Time, token []byte) bool {
	if d.Status != StatusDownloading {
		return false
	}
	d.Status = StatusPaused
	d.PausedAt = &now
	d.PauseRequested = false
	d.ResumeToken = nil
	if len(token) > 0 {
		d.ResumeToken = token
	}
	return true
}

// MarkCancelled cancels any non-terminal download.
func (d *Download) MarkCancelled() bool {
	switch d.Status {
	case StatusPending, StatusDownloading, StatusPaused:
		d.Status = StatusCancelled
		d.PauseRequested = false
		return true
	default:
		return false
	}
}

// Resume puts a paused download back in the queue. A failed download is retried.
func (d *Download) Resume() bool {
	switch d.Status {
	case StatusPaused:
		d.Status = StatusPending
		d.ErrorMessage = ""
		return true
	case StatusFailed:
		return d.Retry()
	default:
		return false
	}
}

// Retry restarts a failed or cancelled download from scratch.
func (d *Download) Retry() bool {
	if d.Status != StatusFailed && d.Status != StatusCancelled {
		return false
	}
	d.Status = StatusPending
	d.RetryCount++
	d.BytesDownloaded = 0
	d.ResumeToken = nil
	d.ErrorMessage = ""
	d.PauseRequested = false
	return true
}

// ResetInterrupted returns a downloading record to the queue after its
// transfer was lost. A record with a pause in flight lands in paused.
func (d *Download) ResetInterrupted(now time.Time) bool {
	if d.Status != StatusDownloading {
		return false
	}
	if d.PauseRequested {
		d.Status = StatusPaused
		d.PausedAt = &now
	} else {
		d.Status = StatusPending
	}
	d.PauseRequested = false
	return true
}

// Normalize fills defaults for fields missing from older stored documents.
func (d *Download) Normalize() {
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.TotalBytes == 0 && d.BytesDownloaded == 0 && d.Status != StatusCompleted {
		d.TotalBytes = UnknownTotal
	}
	if d.TotalBytes >= 0 && d.BytesDownloaded > d.TotalBytes {
		d.BytesDownloaded = d.TotalBytes
	}
}

// Clone returns a deep copy.
func (d *Download) Clone() *Download {
	c := *d
	c.Metadata.Extra = maps.Clone(d.Metadata.Extra)
	c.Validators = maps.Clone(d.Validators)
	if d.ResumeToken != nil {
		c.ResumeToken = append([]byte(nil), d.ResumeToken...)
	}
	c.StartedAt = cloneTime(d.StartedAt)
	c.CompletedAt = cloneTime(d.CompletedAt)
	c.PausedAt = cloneTime(d.PausedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// QueueStats represents download queue statistics
type QueueStats struct {
	Total            int   `json:"total"`
	PendingCount     int   `json:"pending"`
	DownloadingCount int   `json:"downloading"`
	PausedCount      int   `json:"paused"`
	CompletedCount   int   `json:"completed"`
	FailedCount      int   `json:"failed"`
	CancelledCount   int   `json:"cancelled"`
	TotalBytes       int64 `json:"total_bytes"`
	DownloadedBytes  int64 `json:"downloaded_bytes"`
	MaxConcurrency   int   `json:"max_concurrency"`
}

// Add accounts for one download.
func (s *QueueStats) Add(d *Download) {
	s.Total++
	switch d.Status {
	case StatusPending:
		s.PendingCount++
	case StatusDownloading:
		s.DownloadingCount++
	case StatusPaused:
		s.PausedCount++
	case StatusCompleted:
		s.CompletedCount++
	case StatusFailed:
		s.FailedCount++
	case StatusCancelled:
		s.CancelledCount++
	}
	if d.TotalBytes > 0 {
		s.TotalBytes += d.TotalBytes
	}
	s.DownloadedBytes += d.BytesDownloaded
}

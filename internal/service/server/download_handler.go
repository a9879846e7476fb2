package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
	"github.com/vertextoedge/threadfetch/internal/service/queue"
)

// maxBatchBody bounds the size of an enqueue request body
const maxBatchBody = 8 << 20

// DownloadHandler serves the queue control API
type DownloadHandler struct {
	queue  Queue
	fs     port.FileSystem
	logger *zap.Logger
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(q Queue, fs port.FileSystem, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{queue: q, fs: fs, logger: logger}
}

type createRequest struct {
	Items []queue.Request `json:"items"`
}

type createResponse struct {
	Created []*domain.Download `json:"created"`
	Skipped int                `json:"skipped"`
}

type countResponse struct {
	Affected int `json:"affected"`
}

type concurrencyRequest struct {
	MaxConcurrency int `json:"max_concurrency"`
}

type statsResponse struct {
	Queue domain.QueueStats `json:"queue"`
	Disk  *port.DiskUsage   `json:"disk,omitempty"`
}

// HandleList lists downloads, optionally filtered by status and group
func (h *DownloadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var status domain.Status
	if raw := query.Get("status"); raw != "" {
		parsed, err := domain.ParseStatus(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
			return
		}
		status = parsed
	}

	var downloads []*domain.Download
	if group := query.Get("group"); group != "" {
		downloads = h.queue.GetByGroup(group)
		if status != "" {
			downloads = filterStatus(downloads, status)
		}
	} else if status != "" {
		downloads = h.queue.GetByStatus(status)
	} else {
		downloads = h.queue.All()
	}

	if downloads == nil {
		downloads = []*domain.Download{}
	}
	writeJSON(w, http.StatusOK, downloads)
}

func filterStatus(downloads []*domain.Download, status domain.Status) []*domain.Download {
	var out []*domain.Download
	for _, d := range downloads {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

// HandleCreate enqueues a batch of downloads
func (h *DownloadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	if len(req.Items) == 0 {
		writeError(w, fmt.Errorf("%w: items must not be empty", domain.ErrInvalidInput))
		return
	}

	created, err := h.queue.QueueBatch(req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	if created == nil {
		created = []*domain.Download{}
	}

	status := http.StatusOK
	if len(created) > 0 {
		status = http.StatusCreated
	}
	h.logger.Info("downloads enqueued",
		zap.Int("requested", len(req.Items)),
		zap.Int("created", len(created)))
	writeJSON(w, status, createResponse{Created: created, Skipped: len(req.Items) - len(created)})
}

// HandleGet returns one download
func (h *DownloadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.queue.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleRemove deletes a download
func (h *DownloadHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAction applies pause, resume, cancel or retry to one download
func (h *DownloadHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var op func(string) error
	switch r.PathValue("action") {
	case "pause":
		op = h.queue.Pause
	case "resume":
		op = h.queue.Resume
	case "cancel":
		op = h.queue.Cancel
	case "retry":
		op = h.queue.Retry
	default:
		writeError(w, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, r.PathValue("action")))
		return
	}

	if err := op(id); err != nil {
		writeError(w, err)
		return
	}
	h.HandleGet(w, r)
}

// HandleGroups returns per-group aggregates
func (h *DownloadHandler) HandleGroups(w http.ResponseWriter, r *http.Request) {
	groups := h.queue.GetGroups()
	if groups == nil {
		groups = []domain.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleStats returns queue counters and disk usage
func (h *DownloadHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Queue: h.queue.Stats()}
	if h.fs != nil {
		usage, err := h.fs.GetDiskUsage()
		if err != nil {
			h.logger.Warn("failed to get disk usage", zap.Error(err))
		} else {
			resp.Disk = usage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleQueueAction applies a bulk operation to the whole queue
func (h *DownloadHandler) HandleQueueAction(w http.ResponseWriter, r *http.Request) {
	var op func() (int, error)
	switch r.PathValue("action") {
	case "pause-all":
		op = h.queue.PauseAll
	case "resume-all":
		op = h.queue.ResumeAll
	case "retry-failed":
		op = h.queue.RetryAllFailed
	case "clear-completed":
		op = h.queue.ClearCompleted
	case "clear-all":
		op = h.queue.ClearAll
	default:
		writeError(w, fmt.Errorf("%w: unknown queue action %q", domain.ErrInvalidInput, r.PathValue("action")))
		return
	}

	n, err := op()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Affected: n})
}

// HandleConcurrency changes the transfer bound
func (h *DownloadHandler) HandleConcurrency(w http.ResponseWriter, r *http.Request) {
	var req concurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	if req.MaxConcurrency < 1 {
		writeError(w, fmt.Errorf("%w: max_concurrency must be at least 1", domain.ErrInvalidInput))
		return
	}

	h.queue.SetMaxConcurrency(req.MaxConcurrency)
	writeJSON(w, http.StatusOK, h.queue.Stats())
}

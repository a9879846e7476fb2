package server

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// FileHandler serves files of completed downloads
type FileHandler struct {
	queue  Queue
	fs     port.FileSystem
	logger *zap.Logger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(q Queue, fs port.FileSystem, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		queue:  q,
		fs:     fs,
		logger: logger,
	}
}

// HandleDownload serves the saved file of a completed download: /files/{id}
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	d, err := h.queue.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if d.Status != domain.StatusCompleted {
		writeError(w, fmt.Errorf("%w: download %s is %s", domain.ErrInvalidStateTransition, d.ID, d.Status))
		return
	}

	path, err := h.fs.Resolve(d.DestinationPath)
	if err != nil {
		h.logger.Error("invalid destination path", zap.String("download_id", d.ID), zap.Error(err))
		http.Error(w, "File not available", http.StatusInternalServerError)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File no longer on disk", http.StatusGone)
			return
		}
		h.logger.Error("failed to open downloaded file", zap.String("path", path), zap.Error(err))
		http.Error(w, "File not available", http.StatusServiceUnavailable)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		h.logger.Error("failed to stat downloaded file", zap.String("path", path), zap.Error(err))
		http.Error(w, "File not available", http.StatusServiceUnavailable)
		return
	}

	filename := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))

	// ServeContent handles Range and conditional requests
	http.ServeContent(w, r, filename, stat.ModTime(), f)

	h.logger.Debug("file served",
		zap.String("download_id", d.ID),
		zap.String("path", path),
		zap.Int64("size", stat.Size()))
}

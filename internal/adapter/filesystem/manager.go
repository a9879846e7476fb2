package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/domain/vo"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// PartialExt is the extension of in-progress transfer files.
const PartialExt = ".part"

// Manager handles local filesystem operations
type Manager struct {
	rootDir    string
	tempDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir, tempDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, tempDir, 256*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir, tempDir string, bufferSize int) (*Manager, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("root dir is required")
	}
	if tempDir == "" {
		tempDir = filepath.Join(rootDir, ".threadfetch", "partial")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download root dir: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 256 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		tempDir:    tempDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the download root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// TempDir returns the directory holding partial transfers
func (m *Manager) TempDir() string {
	return m.tempDir
}

// BufferSize returns the copy buffer size
func (m *Manager) BufferSize() int {
	return m.bufferSize
}

// Resolve validates a destination path and returns its absolute location
func (m *Manager) Resolve(destinationPath string) (string, error) {
	rp, err := vo.NewRelativePath(destinationPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return rp.Resolve(m.rootDir), nil
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// PartialPath returns the partial file location for a download id
func (m *Manager) PartialPath(downloadID string) string {
	return filepath.Join(m.tempDir, downloadID+PartialExt)
}

// OpenPartial opens the partial file for a download. With resume set an
// existing file is opened for append and its size returned; otherwise the
// file is truncated.
func (m *Manager) OpenPartial(downloadID string, resume bool) (*os.File, int64, error) {
	tempPath := m.PartialPath(downloadID)

	if resume {
		if info, statErr := os.Stat(tempPath); statErr == nil {
			f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, 0, domain.NewStorageError("open partial", tempPath, err)
			}
			return f, info.Size(), nil
		}
	}

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, 0, domain.NewStorageError("create partial", tempPath, err)
	}
	return f, 0, nil
}

// MoveIntoPlace moves a finished temp file to its destination
func (m *Manager) MoveIntoPlace(tempPath, destinationPath string) (string, error) {
	finalPath, err := m.Resolve(destinationPath)
	if err != nil {
		return "", err
	}

	if err := m.EnsureDir(finalPath); err != nil {
		return "", domain.NewStorageError("create parent dir", filepath.Dir(finalPath), err)
	}

	// Replace whatever a previous attempt left behind
	if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
		return "", domain.NewStorageError("remove stale file", finalPath, err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		if !isCrossDevice(err) {
			return "", domain.NewStorageError("move", finalPath, err)
		}
		if err := m.copyFile(tempPath, finalPath); err != nil {
			return "", domain.NewStorageError("copy", finalPath, err)
		}
		_ = os.Remove(tempPath)
	}

	return finalPath, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV)
}

func (m *Manager) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	// Use configurable buffer for better performance on large files
	buf := make([]byte, m.bufferSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetTempFileInfo returns size and modification time of a temp file
// Returns (0, zero time, nil) if the file doesn't exist
func (m *Manager) GetTempFileInfo(tempPath string) (int64, time.Time, error) {
	info, err := os.Stat(tempPath)
	if os.IsNotExist(err) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// DeleteTempFile removes a temporary file
func (m *Manager) DeleteTempFile(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// CleanOldTempFiles removes partial files older than the specified duration.
// keep receives the download id of each candidate.
func (m *Manager) CleanOldTempFiles(olderThan time.Duration, keep func(name string) bool) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	entries, err := os.ReadDir(m.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != PartialExt {
			continue
		}
		if keep != nil && keep(strings.TrimSuffix(name, PartialExt)) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		if removeErr := os.Remove(filepath.Join(m.tempDir, name)); removeErr == nil {
			count++
		}
	}
	return count, nil
}

//go:build windows

package filesystem

import (
	"errors"

	"github.com/vertextoedge/threadfetch/internal/port"
)

// GetDiskUsage is not supported on Windows
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	return nil, errors.New("disk usage is not supported on windows")
}

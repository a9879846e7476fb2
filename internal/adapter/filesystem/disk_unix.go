//go:build !windows

package filesystem

import (
	"syscall"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// GetDiskUsage reports usage of the filesystem holding the download root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.rootDir, &stat); err != nil {
		return nil, domain.NewStorageError("statfs", m.rootDir, err)
	}

	bsize := uint64(stat.Bsize)
	usage := &port.DiskUsage{
		Total: uint64(stat.Blocks) * bsize,
		Free:  uint64(stat.Bavail) * bsize,
	}
	if usage.Total > usage.Free {
		usage.Used = usage.Total - usage.Free
	}
	if usage.Total > 0 {
		usage.UsedPct = float64(usage.Used) / float64(usage.Total) * 100
	}
	return usage, nil
}

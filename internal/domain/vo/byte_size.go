package vo

import (
	"github.com/dustin/go-humanize"
)

// ByteSize is a byte count with human-readable formatting.
// Negative values mean unknown.
type ByteSize int64

// Bytes returns the raw count.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// IsKnown reports whether the size is known.
func (b ByteSize) IsKnown() bool {
	return b >= 0
}

// String returns a human-readable representation such as "1.5 MiB".
func (b ByteSize) String() string {
	if b < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(b))
}

// Progress formats written against total, e.g. "512 KiB / 1.0 MiB".
func Progress(written, total int64) string {
	return ByteSize(written).String() + " / " + ByteSize(total).String()
}

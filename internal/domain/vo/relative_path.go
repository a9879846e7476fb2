package vo

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// RelativePath is a destination path relative to the download root.
// It never points outside the root.
type RelativePath struct {
	value string
}

var (
	ErrEmptyPath    = errors.New("destination path cannot be empty")
	ErrAbsolutePath = errors.New("destination path must be relative")
	ErrPathEscape   = errors.New("destination path escapes the download root")
)

// NewRelativePath validates and normalizes a destination path.
func NewRelativePath(p string) (RelativePath, error) {
	if strings.TrimSpace(p) == "" {
		return RelativePath{}, ErrEmptyPath
	}
	slashed := filepath.ToSlash(p)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return RelativePath{}, ErrAbsolutePath
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return RelativePath{}, ErrEmptyPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return RelativePath{}, ErrPathEscape
	}
	return RelativePath{value: cleaned}, nil
}

// MustRelativePath creates a RelativePath, panicking if invalid.
// Use only when path is known to be valid.
func MustRelativePath(p string) RelativePath {
	rp, err := NewRelativePath(p)
	if err != nil {
		panic(err)
	}
	return rp
}

// String returns the slash-separated form.
func (rp RelativePath) String() string {
	return rp.value
}

// IsEmpty returns true if the path is empty.
func (rp RelativePath) IsEmpty() bool {
	return rp.value == ""
}

// FileName returns the base name of the file.
func (rp RelativePath) FileName() string {
	return path.Base(rp.value)
}

// Resolve joins the path onto root using the OS separator.
func (rp RelativePath) Resolve(root string) string {
	return filepath.Join(root, filepath.FromSlash(rp.value))
}

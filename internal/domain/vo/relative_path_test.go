package vo

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewRelativePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"board/123/a.jpg", "board/123/a.jpg", nil},
		{"board//123/./a.jpg", "board/123/a.jpg", nil},
		{"board/../a.jpg", "a.jpg", nil},
		{"", "", ErrEmptyPath},
		{"   ", "", ErrEmptyPath},
		{".", "", ErrEmptyPath},
		{"/etc/passwd", "", ErrAbsolutePath},
		{"../a.jpg", "", ErrPathEscape},
		{"a/../../b", "", ErrPathEscape},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewRelativePath(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestRelativePath_Resolve(t *testing.T) {
	rp := MustRelativePath("board/a.jpg")

	got := rp.Resolve("/data")
	want := filepath.Join("/data", "board", "a.jpg")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
	if rp.FileName() != "a.jpg" {
		t.Errorf("FileName() = %q", rp.FileName())
	}
}

func TestByteSize_String(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{-1, "unknown"},
		{0, "0 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

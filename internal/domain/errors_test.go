package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSkippableError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		context string
		want    string
	}{
		{
			name:    "with context and error",
			err:     errors.New("underlying error"),
			context: "queueing batch item",
			want:    "queueing batch item: underlying error",
		},
		{
			name:    "with context only",
			err:     nil,
			context: "download already queued",
			want:    "download already queued",
		},
		{
			name:    "with error only",
			err:     errors.New("underlying error"),
			context: "",
			want:    "underlying error",
		},
		{
			name:    "empty",
			err:     nil,
			context: "",
			want:    "skippable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewSkippableError(tt.err, tt.context)
			if got := se.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkippableError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	se := NewSkippableError(underlying, "context")

	if got := se.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	// Test with nil error
	seNil := NewSkippableError(nil, "context")
	if got := seNil.Unwrap(); got != nil {
		t.Errorf("Unwrap() with nil = %v, want nil", got)
	}
}

func TestIsSkippable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "skippable error",
			err:  NewSkippableError(errors.New("err"), "context"),
			want: true,
		},
		{
			name: "wrapped skippable error",
			err:  fmt.Errorf("wrapped: %w", NewSkippableError(errors.New("err"), "context")),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("regular error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "predefined skippable error",
			err:  ErrSkipDuplicate,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSkippable(tt.err); got != tt.want {
				t.Errorf("IsSkippable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with underlying error",
			err:  errors.New("connection reset by peer"),
			want: "connection timeout",
		},
		{
			name: "nil error",
			err:  nil,
			want: "retryable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := NewRetryableError(tt.err, time.Second)
			if got := re.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	re := NewRetryableError(underlying, time.Second)

	if got := re.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("err"), time.Second),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), time.Second)),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("regular error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "skippable error is not retryable",
			err:  NewSkippableError(errors.New("err"), "context"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOk       bool
	}{
		{
			name:         "retryable error",
			err:          NewRetryableError(errors.New("err"), 5*time.Minute),
			wantDuration: 5 * time.Minute,
			wantOk:       true,
		},
		{
			name:         "wrapped retryable error",
			err:          fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), 30*time.Second)),
			wantDuration: 30 * time.Second,
			wantOk:       true,
		},
		{
			name:         "regular error",
			err:          errors.New("regular error"),
			wantDuration: 0,
			wantOk:       false,
		},
		{
			name:         "nil error",
			err:          nil,
			wantDuration: 0,
			wantOk:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, ok := GetRetryAfter(tt.err)
			if duration != tt.wantDuration || ok != tt.wantOk {
				t.Errorf("GetRetryAfter() = (%v, %v), want (%v, %v)",
					duration, ok, tt.wantDuration, tt.wantOk)
			}
		})
	}
}

func TestErrorsAsUnwrap(t *testing.T) {
	se := NewSkippableError(ErrInvalidInput, "context")
	if !errors.Is(se, ErrInvalidInput) {
		t.Error("SkippableError should unwrap to ErrInvalidInput")
	}

	re := NewRetryableError(NewTransferError("get", 503, nil), time.Second)
	if !IsTransferError(re) {
		t.Error("RetryableError should unwrap to a TransferError")
	}
}

func TestPredefinedSkippableErrors(t *testing.T) {
	if !IsSkippable(ErrSkipDuplicate) {
		t.Error("ErrSkipDuplicate should be skippable")
	}
	if !errors.Is(ErrSkipDuplicate, ErrAlreadyExists) {
		t.Error("ErrSkipDuplicate should unwrap to ErrAlreadyExists")
	}
}

func TestTransferError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TransferError
		want string
	}{
		{
			name: "status and cause",
			err:  NewTransferError("get", 404, errors.New("not found")),
			want: "transfer get: http status 404: not found",
		},
		{
			name: "cause only",
			err:  NewTransferError("read body", 0, errors.New("unexpected EOF")),
			want: "transfer read body: unexpected EOF",
		},
		{
			name: "status only",
			err:  NewTransferError("get", 500, nil),
			want: "transfer get: http status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("completing download: %w", NewStorageError("move", "/media/a.jpg", cause))

	if !IsStorageError(err) {
		t.Fatal("IsStorageError() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	if IsTransferError(err) {
		t.Error("StorageError must not be classified as a transfer error")
	}

	want := "completing download: move /media/a.jpg: permission denied"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

package port

import (
	"context"

	"github.com/vertextoedge/threadfetch/internal/domain"
)

// TransferRequest is the copy of a download record a transport needs.
type TransferRequest struct {
	DownloadID string
	SourceURL  string

	// ResumeToken is an opaque token from a previous paused attempt.
	ResumeToken []byte

	// RangeOffset asks for a byte-range resumption when no token is available.
	RangeOffset int64

	// Validators from a previous response, used for conditional resumption.
	Validators map[string]string
}

// TransferObserver receives the outcome of one transfer attempt.
// Callbacks may arrive from any goroutine. Exactly one of OnComplete or
// OnFailure is called per attempt.
type TransferObserver interface {
	OnProgress(bytesWritten, bytesTotal int64)
	OnComplete(result domain.TransferResult)
	OnFailure(err error, resumeToken []byte)
}

// TransferHandle identifies an in-flight transfer.
type TransferHandle interface {
	ID() string
}

// Transport starts resumable fetches.
type Transport interface {
	// Start begins a transfer and returns immediately.
	Start(ctx context.Context, req TransferRequest, obs TransferObserver) (TransferHandle, error)

	// Cancel aborts a transfer. The observer then receives OnFailure with
	// domain.ErrTransferCancelled and, if wantResumeToken is set and the
	// transfer can be resumed, a resume token.
	Cancel(h TransferHandle, wantResumeToken bool)
}

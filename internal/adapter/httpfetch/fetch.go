package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
	"github.com/vertextoedge/threadfetch/internal/util/ratelimiter"
)

// run performs one transfer attempt and reports exactly one outcome
func (c *Client) run(ctx context.Context, t *transfer) {
	logger := c.logger.With(
		zap.String("download_id", t.req.DownloadID),
		zap.String("transfer_id", t.id),
	)

	offset, v := c.resumePoint(t.req)
	partialPath := c.partials.PartialPath(t.req.DownloadID)

	resp, offset, err := c.open(ctx, t, offset, v)
	if err != nil {
		c.finishWithError(t, logger, err, offset, v)
		return
	}
	defer resp.Body.Close()

	// Prefer the fresh validators so a later resume targets this representation
	if rv := validatorsFromResponse(resp); rv.ETag != "" || rv.LastModified != "" {
		v = rv
	}

	resumed := offset > 0
	f, existing, err := c.partials.OpenPartial(t.req.DownloadID, resumed)
	if err != nil {
		c.finishWithError(t, logger, err, 0, v)
		return
	}
	if resumed && existing != offset {
		// resumePoint trimmed the file, so a mismatch means someone else touched it
		f.Close()
		c.finishWithError(t, logger, domain.NewStorageError("resume partial", partialPath,
			fmt.Errorf("partial has %d bytes, expected %d", existing, offset)), 0, v)
		return
	}

	total := expectedTotal(resp, offset)
	if resumed {
		logger.Info("resuming transfer", zap.Int64("from_byte", offset), zap.Int64("total", total))
	}

	pw := &progressWriter{
		w:       f,
		written: offset,
		total:   total,
		obs:     t.obs,
		limiter: ratelimiter.New(c.cfg.ProgressInterval),
	}
	buf := make([]byte, c.cfg.BufferSize)
	_, copyErr := io.CopyBuffer(pw, resp.Body, buf)
	closeErr := f.Close()

	if copyErr != nil {
		c.finishWithError(t, logger, domain.NewTransferError("read body", 0, copyErr), pw.written, v)
		return
	}
	if closeErr != nil {
		c.finishWithError(t, logger, domain.NewStorageError("close partial", partialPath, closeErr), pw.written, v)
		return
	}
	if total >= 0 && pw.written != total {
		c.finishWithError(t, logger, domain.NewTransferError("read body", 0,
			fmt.Errorf("short body: got %d of %d bytes", pw.written, total)), pw.written, v)
		return
	}

	if total < 0 {
		total = pw.written
	}
	t.obs.OnProgress(pw.written, total)
	t.obs.OnComplete(domain.TransferResult{
		TempPath:     partialPath,
		BytesWritten: pw.written,
		Resumed:      resumed,
		ResumedFrom:  offset,
		Validators:   v.toMap(),
	})
}

// resumePoint picks the starting offset from the token, the requested range
// and what is actually on disk
func (c *Client) resumePoint(req port.TransferRequest) (int64, validators) {
	var offset int64
	v := validatorsFromMap(req.Validators)
	if tok, ok := decodeToken(req.ResumeToken); ok {
		offset = tok.Offset
		if tok.ETag != "" || tok.LastModified != "" {
			v = tok.validators
		}
	} else if req.RangeOffset > 0 {
		offset = req.RangeOffset
	}
	if offset <= 0 {
		return 0, v
	}

	partialPath := c.partials.PartialPath(req.DownloadID)
	info, err := os.Stat(partialPath)
	if err != nil || info.Size() == 0 {
		return 0, v
	}
	if info.Size() < offset {
		offset = info.Size()
	}
	if info.Size() > offset {
		if err := os.Truncate(partialPath, offset); err != nil {
			return 0, v
		}
	}
	return offset, v
}

// open issues the request, falling back to a full transfer when the range
// cannot be served. It returns the offset the response body starts at.
func (c *Client) open(ctx context.Context, t *transfer, offset int64, v validators) (*http.Response, int64, error) {
	for {
		httpReq, err := c.newRequest(ctx, t, offset, v)
		if err != nil {
			return nil, offset, domain.NewTransferError("build request", 0, err)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, offset, domain.NewTransferError("request", 0, err)
		}

		switch {
		case resp.StatusCode == http.StatusPartialContent && offset > 0:
			if start, ok := contentRangeStart(resp); ok && start != offset {
				resp.Body.Close()
				return nil, offset, domain.NewTransferError("request", resp.StatusCode,
					fmt.Errorf("%w: content range starts at %d, want %d", domain.ErrRangeNotSatisfied, start, offset))
			}
			return resp, offset, nil
		case resp.StatusCode == http.StatusOK:
			// Server sent the whole representation
			return resp, 0, nil
		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
			resp.Body.Close()
			offset = 0
			continue
		default:
			resp.Body.Close()
			err := domain.NewTransferError("request", resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, offset, domain.NewRetryableError(err, retryAfter(resp))
			}
			return nil, offset, err
		}
	}
}

// finishWithError reports cancellation or failure. A resume token is
// produced whenever partial data remains usable.
func (c *Client) finishWithError(t *transfer, logger *zap.Logger, err error, written int64, v validators) {
	partialPath := c.partials.PartialPath(t.req.DownloadID)

	if cancelled, wantToken := t.cancelState(); cancelled {
		if !wantToken {
			if delErr := c.partials.DeleteTempFile(partialPath); delErr != nil {
				logger.Warn("failed to delete partial file", zap.Error(delErr))
			}
			t.obs.OnFailure(domain.ErrTransferCancelled, nil)
			return
		}
		var token []byte
		if written > 0 {
			token = encodeToken(written, v)
		}
		logger.Debug("transfer cancelled", zap.Int64("bytes_written", written))
		t.obs.OnFailure(domain.ErrTransferCancelled, token)
		return
	}

	logger.Warn("transfer failed", zap.Error(err), zap.Int64("bytes_written", written))

	var token []byte
	if written > 0 {
		token = encodeToken(written, v)
	}
	t.obs.OnFailure(err, token)
}

// expectedTotal returns the full size of the resource or -1 when unknown
func expectedTotal(resp *http.Response, offset int64) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if i := strings.LastIndexByte(cr, '/'); i >= 0 {
				if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
					return n
				}
			}
		}
	}
	if resp.ContentLength < 0 {
		return domain.UnknownTotal
	}
	return offset + resp.ContentLength
}

func contentRangeStart(resp *http.Response) (int64, bool) {
	cr := resp.Header.Get("Content-Range")
	if !strings.HasPrefix(cr, "bytes ") {
		return 0, false
	}
	rng := strings.TrimPrefix(cr, "bytes ")
	dash := strings.IndexByte(rng, '-')
	if dash <= 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(rng[:dash], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// progressWriter counts bytes written to the partial file and reports
// throttled progress
type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	obs     port.TransferObserver
	limiter *ratelimiter.Limiter
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if n > 0 {
		if ok, _ := p.limiter.Allow(); ok {
			p.obs.OnProgress(p.written, p.total)
		}
	}
	return n, err
}

// Package httpfetch implements port.Transport over HTTP with byte-range resumption.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/threadfetch/internal/port"
)

// PartialStore owns the on-disk partial files of transfers.
type PartialStore interface {
	PartialPath(downloadID string) string
	OpenPartial(downloadID string, resume bool) (*os.File, int64, error)
	DeleteTempFile(tempPath string) error
}

// Config contains client configuration
type Config struct {
	UserAgent             string
	ResponseHeaderTimeout time.Duration
	ProgressInterval      time.Duration
	BufferSize            int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		UserAgent:             "threadfetch/0.1",
		ResponseHeaderTimeout: 30 * time.Second,
		ProgressInterval:      250 * time.Millisecond,
		BufferSize:            256 * 1024,
	}
}

// Client is an HTTP transport for the download queue
type Client struct {
	cfg        Config
	httpClient *http.Client
	partials   PartialStore
	logger     *zap.Logger

	mu        sync.Mutex
	transfers map[string]*transfer
	wg        sync.WaitGroup
}

// Ensure Client implements port.Transport
var _ port.Transport = (*Client)(nil)

// New creates a new HTTP transport
func New(cfg Config, partials PartialStore, logger *zap.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = defaults.ResponseHeaderTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Connection pooling
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		// Buffer sizes for large media transfers
		WriteBufferSize: cfg.BufferSize,
		ReadBufferSize:  cfg.BufferSize,

		ForceAttemptHTTP2: true,

		// Media is already compressed and ranges must address raw bytes
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
		},
		partials:  partials,
		logger:    logger,
		transfers: make(map[string]*transfer),
	}
}

// transfer is one in-flight attempt. It doubles as the port.TransferHandle.
type transfer struct {
	id     string
	req    port.TransferRequest
	obs    port.TransferObserver
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	wantToken bool
}

// ID returns the handle id
func (t *transfer) ID() string {
	return t.id
}

func (t *transfer) requestCancel(wantToken bool) {
	t.mu.Lock()
	if !t.cancelled {
		t.cancelled = true
		t.wantToken = wantToken
	}
	t.mu.Unlock()
	t.cancel()
}

func (t *transfer) cancelState() (cancelled, wantToken bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled, t.wantToken
}

// Start begins a transfer on its own goroutine
func (c *Client) Start(ctx context.Context, req port.TransferRequest, obs port.TransferObserver) (port.TransferHandle, error) {
	if req.DownloadID == "" || req.SourceURL == "" {
		return nil, errors.New("download id and source url are required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	t := &transfer{
		id:     uuid.NewString(),
		req:    req,
		obs:    obs,
		cancel: cancel,
	}

	c.mu.Lock()
	c.transfers[t.id] = t
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.forget(t.id)
		c.run(runCtx, t)
	}()

	return t, nil
}

// Cancel aborts a transfer started by this client
func (c *Client) Cancel(h port.TransferHandle, wantResumeToken bool) {
	if h == nil {
		return
	}
	c.mu.Lock()
	t, ok := c.transfers[h.ID()]
	c.mu.Unlock()
	if !ok {
		return
	}
	t.requestCancel(wantResumeToken)
}

// Active returns the number of in-flight transfers
func (c *Client) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transfers)
}

// Close cancels every transfer, keeping partial data, and waits for them to finish
func (c *Client) Close() error {
	c.mu.Lock()
	all := make([]*transfer, 0, len(c.transfers))
	for _, t := range c.transfers {
		all = append(all, t)
	}
	c.mu.Unlock()

	for _, t := range all {
		t.requestCancel(true)
	}
	c.wg.Wait()
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.transfers, id)
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, t *transfer, offset int64, v validators) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.req.SourceURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		if cond := v.ifRange(); cond != "" {
			httpReq.Header.Set("If-Range", cond)
		}
	}
	return httpReq, nil
}

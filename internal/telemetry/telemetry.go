// Package telemetry exposes queue metrics through OpenTelemetry and a
// Prometheus scrape endpoint.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry holds the meter provider and every instrument
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *promclient.Registry

	// Queue metrics
	statusTransitions metric.Int64Counter
	bytesCompleted    metric.Int64Counter
	downloadsActive   metric.Int64UpDownCounter
	queueUpdates      metric.Int64Counter

	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
}

// Config holds telemetry configuration
type Config struct {
	Enabled     bool
	ServiceName string
}

// New creates a Telemetry instance. A disabled instance records nothing and
// serves 404 on its handler.
func New(cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "threadfetch"
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	t := &Telemetry{
		meterProvider: provider,
		meter:         provider.Meter(cfg.ServiceName),
		registry:      registry,
	}
	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return t, nil
}

// Enabled reports whether metrics are recorded
func (t *Telemetry) Enabled() bool {
	return t != nil && t.meterProvider != nil
}

// Handler returns the Prometheus scrape handler
func (t *Telemetry) Handler() http.Handler {
	if !t.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.meterProvider.Shutdown(ctx)
}

// RecordStatusTransition counts a transition into status
func (t *Telemetry) RecordStatusTransition(status string) {
	if t.statusTransitions != nil {
		t.statusTransitions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordBytesCompleted adds the size of a finished download
func (t *Telemetry) RecordBytesCompleted(n int64) {
	if t.bytesCompleted != nil && n > 0 {
		t.bytesCompleted.Add(context.Background(), n)
	}
}

// AddActiveDownloads moves the active transfer gauge by delta
func (t *Telemetry) AddActiveDownloads(delta int64) {
	if t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), delta)
	}
}

// RecordQueueUpdate counts an add or remove on the queue
func (t *Telemetry) RecordQueueUpdate(kind string) {
	if t.queueUpdates != nil {
		t.queueUpdates.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordHTTPRequest records one control API request
func (t *Telemetry) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	}
	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	t.statusTransitions, err = t.meter.Int64Counter(
		"downloads_status_transitions_total",
		metric.WithDescription("Download state machine transitions by target status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_status_transitions_total counter: %w", err)
	}

	t.bytesCompleted, err = t.meter.Int64Counter(
		"download_bytes_total",
		metric.WithDescription("Bytes of completed downloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_bytes_total counter: %w", err)
	}

	t.downloadsActive, err = t.meter.Int64UpDownCounter(
		"downloads_active",
		metric.WithDescription("Number of downloads currently transferring"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_active counter: %w", err)
	}

	t.queueUpdates, err = t.meter.Int64Counter(
		"queue_updates_total",
		metric.WithDescription("Queue membership changes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue_updates_total counter: %w", err)
	}

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	return nil
}

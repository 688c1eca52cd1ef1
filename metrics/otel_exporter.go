package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     *Collector

	meter         metric.Meter
	requestsGauge metric.Int64ObservableGauge
	rejectedGauge metric.Int64ObservableGauge
	dispatchGauge metric.Int64ObservableGauge
	latencyGauge  metric.Float64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector *Collector) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-gateway",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.requestsGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.requests.received",
		metric.WithDescription("Requests received per endpoint"),
		metric.WithUnit("{requests}"),
		metric.WithInt64Callback(oe.observeRequests),
	)
	if err != nil {
		return fmt.Errorf("creating requests gauge: %w", err)
	}

	oe.rejectedGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.requests.rejected",
		metric.WithDescription("Requests rejected by rejection reason"),
		metric.WithUnit("{requests}"),
		metric.WithInt64Callback(oe.observeRejected),
	)
	if err != nil {
		return fmt.Errorf("creating rejected gauge: %w", err)
	}

	oe.dispatchGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.dispatch.count",
		metric.WithDescription("Dispatch outcomes by status"),
		metric.WithUnit("{dispatches}"),
		metric.WithInt64Callback(oe.observeDispatch),
	)
	if err != nil {
		return fmt.Errorf("creating dispatch gauge: %w", err)
	}

	oe.latencyGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.response.latency.avg",
		metric.WithDescription("Rolling average ingress response time"),
		metric.WithUnit("ms"),
		metric.WithFloat64Callback(oe.observeLatency),
	)
	if err != nil {
		return fmt.Errorf("creating latency gauge: %w", err)
	}

	return nil
}

// observeRequests reports per-endpoint received counts
func (oe *OTelExporter) observeRequests(_ context.Context, observer metric.Int64Observer) error {
	snapshot := oe.collector.Snapshot()
	for endpointID, e := range snapshot.PerEndpoint {
		observer.Observe(e.Received, metric.WithAttributes(
			attribute.String("endpoint.id", endpointID),
		))
	}
	return nil
}

// observeRejected reports rejection counts by reason
func (oe *OTelExporter) observeRejected(_ context.Context, observer metric.Int64Observer) error {
	snapshot := oe.collector.Snapshot()
	observer.Observe(snapshot.RejectedSignature, metric.WithAttributes(
		attribute.String("reason", "signature"),
	))
	observer.Observe(snapshot.RejectedRateLimit, metric.WithAttributes(
		attribute.String("reason", "rate_limit"),
	))
	observer.Observe(snapshot.ParseFailures, metric.WithAttributes(
		attribute.String("reason", "parse"),
	))
	return nil
}

// observeDispatch reports dispatch outcomes by status
func (oe *OTelExporter) observeDispatch(_ context.Context, observer metric.Int64Observer) error {
	snapshot := oe.collector.Snapshot()
	observer.Observe(snapshot.DispatchSucceeded, metric.WithAttributes(
		attribute.String("dispatch.status", "succeeded"),
	))
	observer.Observe(snapshot.DispatchFailed, metric.WithAttributes(
		attribute.String("dispatch.status", "failed"),
	))
	observer.Observe(snapshot.DispatchRetried, metric.WithAttributes(
		attribute.String("dispatch.status", "retrying"),
	))
	observer.Observe(snapshot.DispatchDeadLettered, metric.WithAttributes(
		attribute.String("dispatch.status", "dead_lettered"),
	))
	return nil
}

// observeLatency reports the rolling average response time
func (oe *OTelExporter) observeLatency(_ context.Context, observer metric.Float64Observer) error {
	observer.Observe(oe.collector.Snapshot().AvgResponseMillis)
	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}

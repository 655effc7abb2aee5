package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Metrics holds the common cross-component instruments shared by the
// orchestration core.
type Metrics struct {
	RetryAttempts          metric.Int64Counter
	CircuitOpenTransitions metric.Int64Counter
	TasksClaimed           metric.Int64Counter
	TasksCompleted         metric.Int64Counter
	TasksFailed            metric.Int64Counter
	TasksBlocked           metric.Int64Counter
	TasksReclaimed         metric.Int64Counter
	ActiveWorkers          metric.Int64UpDownCounter
}

// InitMetrics sets up a global OTLP metrics exporter (push). Returns the
// shutdown function and the common instruments.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, m Metrics) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("service", service),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, createCommonInstruments()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, createCommonInstruments()
}

func createCommonInstruments() Metrics {
	meter := otel.Meter(Tracer)
	retry, _ := meter.Int64Counter("agentcore_resilience_retry_attempts_total")
	circuit, _ := meter.Int64Counter("agentcore_resilience_circuit_open_total")
	claimed, _ := meter.Int64Counter("agentcore_taskboard_claims_total")
	completed, _ := meter.Int64Counter("agentcore_tasks_completed_total")
	failed, _ := meter.Int64Counter("agentcore_tasks_failed_total")
	blocked, _ := meter.Int64Counter("agentcore_tasks_blocked_total")
	reclaimed, _ := meter.Int64Counter("agentcore_tasks_reclaimed_total")
	active, _ := meter.Int64UpDownCounter("agentcore_wave_active_workers")
	return Metrics{
		RetryAttempts:          retry,
		CircuitOpenTransitions: circuit,
		TasksClaimed:           claimed,
		TasksCompleted:         completed,
		TasksFailed:            failed,
		TasksBlocked:           blocked,
		TasksReclaimed:         reclaimed,
		ActiveWorkers:          active,
	}
}

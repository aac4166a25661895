package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes payment-level instruments. All methods are nil-safe so
// callers never depend on metric delivery.
type Metrics struct {
	paymentsProcessed metric.Int64Counter
	paymentAmount     metric.Float64Counter
	refundsProcessed  metric.Int64Counter
	gatewayLatency    metric.Float64Histogram
	processing        metric.Float64Histogram
	activePayments    metric.Int64UpDownCounter
	idempotentReplays metric.Int64Counter
	guardErrors       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the payment instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "paycore"
	}
	meter := provider.Meter(name)

	paymentsProcessed, err := meter.Int64Counter("payments_processed_total",
		metric.WithDescription("Total payments processed"))
	if err != nil {
		return nil, err
	}
	paymentAmount, err := meter.Float64Counter("payment_amount_total",
		metric.WithDescription("Total payment amount settled"))
	if err != nil {
		return nil, err
	}
	refundsProcessed, err := meter.Int64Counter("refunds_processed_total",
		metric.WithDescription("Total refunds processed"))
	if err != nil {
		return nil, err
	}
	gatewayLatency, err := meter.Float64Histogram("payment_gateway_latency_seconds",
		metric.WithDescription("Payment gateway response time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	if err != nil {
		return nil, err
	}
	processing, err := meter.Float64Histogram("payment_processing_duration_seconds",
		metric.WithDescription("End-to-end ProcessPayment duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	activePayments, err := meter.Int64UpDownCounter("active_payments_processing",
		metric.WithDescription("Number of payments currently at the gateway"))
	if err != nil {
		return nil, err
	}
	idempotentReplays, err := meter.Int64Counter("payment_idempotent_replays_total")
	if err != nil {
		return nil, err
	}
	guardErrors, err := meter.Int64Counter("payment_idempotency_errors_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentsProcessed: paymentsProcessed,
		paymentAmount:     paymentAmount,
		refundsProcessed:  refundsProcessed,
		gatewayLatency:    gatewayLatency,
		processing:        processing,
		activePayments:    activePayments,
		idempotentReplays: idempotentReplays,
		guardErrors:       guardErrors,
	}, nil
}

// RecordPaymentAttempt counts a persisted settlement attempt by outcome and method.
func (m *Metrics) RecordPaymentAttempt(ctx context.Context, status, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("method", strings.TrimSpace(method)),
	)
	m.paymentsProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentAmount adds a settled amount to the per-currency total.
func (m *Metrics) RecordPaymentAmount(ctx context.Context, currency string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))))
	m.paymentAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRefund(ctx context.Context) {
	if m == nil {
		return
	}
	m.refundsProcessed.Add(ctx, 1)
}

// RecordGatewayLatency observes one gateway round trip.
func (m *Metrics) RecordGatewayLatency(ctx context.Context, latency time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.Record(ctx, latency.Seconds())
}

// RecordProcessingDuration observes a ProcessPayment call by outcome.
func (m *Metrics) RecordProcessingDuration(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(outcome)))
	m.processing.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// AddActivePayments moves the in-flight gateway gauge by delta.
func (m *Metrics) AddActivePayments(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.activePayments.Add(ctx, delta)
}

func (m *Metrics) RecordIdempotentReplay(ctx context.Context) {
	if m == nil {
		return
	}
	m.idempotentReplays.Add(ctx, 1)
}

// RecordGuardError counts idempotency guard failures by operation (lookup, record, lock).
func (m *Metrics) RecordGuardError(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.guardErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":    {},
	"method":    {},
	"currency":  {},
	"operation": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

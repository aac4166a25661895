package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("order_id", "ORD-1"),
		attribute.String("status", "completed"),
		attribute.String("method", "card"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" {
			t.Fatalf("expected order_id to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordPaymentAttempt(ctx, "completed", "card")
	m.RecordPaymentAmount(ctx, "USD", 10)
	m.RecordRefund(ctx)
	m.RecordGatewayLatency(ctx, time.Second)
	m.AddActivePayments(ctx, 1)
	m.RecordIdempotentReplay(ctx)
	m.RecordGuardError(ctx, "lookup")
	m.RecordProcessingDuration(ctx, "completed", time.Second)
}

func TestPaymentInstrumentsRecord(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	m, err := New(Config{ServiceName: "paycore-test"}, provider)
	require.NoError(t, err)

	m.RecordPaymentAttempt(ctx, "completed", "card")
	m.RecordPaymentAttempt(ctx, "completed", "card")
	m.RecordPaymentAttempt(ctx, "failed", "wallet")
	m.RecordPaymentAmount(ctx, "usd", 99.99)
	m.RecordPaymentAmount(ctx, "USD", 0)
	m.RecordGatewayLatency(ctx, 250*time.Millisecond)
	m.AddActivePayments(ctx, 1)
	m.AddActivePayments(ctx, -1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	processed := findMetric(t, rm, "payments_processed_total")
	sum, ok := processed.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
		if status, _ := dp.Attributes.Value("status"); status.AsString() == "completed" {
			require.Equal(t, int64(2), dp.Value)
		}
	}
	require.Equal(t, int64(3), total)

	amount := findMetric(t, rm, "payment_amount_total")
	amountSum, ok := amount.Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, amountSum.DataPoints, 1)
	require.InDelta(t, 99.99, amountSum.DataPoints[0].Value, 0.0001)
	currency, _ := amountSum.DataPoints[0].Attributes.Value("currency")
	require.Equal(t, "USD", currency.AsString())

	latency := findMetric(t, rm, "payment_gateway_latency_seconds")
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.Equal(t, uint64(1), hist.DataPoints[0].Count)

	active := findMetric(t, rm, "active_payments_processing")
	activeSum, ok := active.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Equal(t, int64(0), activeSum.DataPoints[0].Value)
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Metrics{}
}

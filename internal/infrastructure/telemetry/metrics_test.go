package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap/zaptest"
)

// disabledMeter builds a provider that records nothing, which is all
// the instrument wrappers need to prove they accept values.
func disabledMeter(t *testing.T) (*telemetry.MeterProvider, metric.Meter) {
	t.Helper()

	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "tripdesk-billing",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return mp, mp.Meter("billing")
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, meter := disabledMeter(t)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, meter)

	gotCfg := mp.GetConfig()
	assert.Equal(t, "tripdesk-billing", gotCfg.ServiceName)
	assert.False(t, gotCfg.Enabled)

	assert.NoError(t, mp.ForceFlush(ctx))

	// Nothing was started, so a dead context cannot break shutdown
	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, mp.Shutdown(cancelledCtx))
}

func TestCounter(t *testing.T) {
	ctx := context.Background()
	_, meter := disabledMeter(t)

	counter, err := telemetry.NewCounter(meter, "invoice_issued_total", "Invoices issued", "{invoice}")
	require.NoError(t, err)
	require.NotNil(t, counter)

	counter.Add(ctx, 5, attribute.String("currency", "EUR"))
	counter.Inc(ctx)
	counter.Inc(ctx, telemetry.AttrInvoiceStatus.String("ISSUED"))
}

func TestHistogram(t *testing.T) {
	ctx := context.Background()
	_, meter := disabledMeter(t)

	t.Run("with explicit boundaries", func(t *testing.T) {
		histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Description: "HTTP request latency",
			Unit:        "s",
			Boundaries:  telemetry.HTTPDurationBuckets,
		})
		require.NoError(t, err)

		histogram.Record(ctx, 0.005, telemetry.AttrHTTPMethod.String("GET"))
		histogram.Record(ctx, 2.5, telemetry.AttrHTTPRoute.String("/api/v1/billing/invoices"))
	})

	t.Run("sdk default boundaries", func(t *testing.T) {
		histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
			Name:        "voucher_amount",
			Description: "Voucher amounts",
			Unit:        "1",
		})
		require.NoError(t, err)

		histogram.Record(ctx, 1.5)
	})

	t.Run("duration helper", func(t *testing.T) {
		histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
			Name:        "db_query_duration_seconds",
			Description: "Query latency",
			Unit:        "s",
			Boundaries:  telemetry.DBDurationBuckets,
		})
		require.NoError(t, err)

		histogram.RecordDuration(ctx, 5*time.Millisecond)
		histogram.RecordDuration(ctx, time.Second, telemetry.AttrDBOperation.String("INSERT"))
	})
}

func TestGauges(t *testing.T) {
	ctx := context.Background()
	_, meter := disabledMeter(t)

	gauge, err := telemetry.NewGauge(meter, "active_connections", "Open connections", "{connection}")
	require.NoError(t, err)
	gauge.Record(ctx, 10)
	gauge.Record(ctx, 15, attribute.String("pool", "db"))

	floatGauge, err := telemetry.NewFloatGauge(meter, "outstanding_ratio", "Outstanding over total billed", "1")
	require.NoError(t, err)
	floatGauge.Record(ctx, 0.37)
	floatGauge.Record(ctx, 0.02, attribute.String("currency", "EUR"))
}

func TestCommonAttributeKeys(t *testing.T) {
	assert.Equal(t, "user_id", string(telemetry.AttrUserID))
	assert.Equal(t, "http.method", string(telemetry.AttrHTTPMethod))
	assert.Equal(t, "http.status_code", string(telemetry.AttrHTTPStatusCode))
	assert.Equal(t, "http.route", string(telemetry.AttrHTTPRoute))
	assert.Equal(t, "db.operation", string(telemetry.AttrDBOperation))
	assert.Equal(t, "db.table", string(telemetry.AttrDBTable))
	assert.Equal(t, "db.pool.state", string(telemetry.AttrDBState))
	assert.Equal(t, "document_type", string(telemetry.AttrDocumentType))
	assert.Equal(t, "invoice_status", string(telemetry.AttrInvoiceStatus))
	assert.Equal(t, "payment_method", string(telemetry.AttrPaymentMethod))
	assert.Equal(t, "payment_status", string(telemetry.AttrPaymentStatus))
	assert.Equal(t, "credit_reason", string(telemetry.AttrCreditReason))
}

func TestDefaultBuckets(t *testing.T) {
	assert.Equal(t, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, telemetry.HTTPDurationBuckets)
	assert.Equal(t, []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}, telemetry.DBDurationBuckets)
	assert.Equal(t, []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}, telemetry.SmallDurationBuckets)
}

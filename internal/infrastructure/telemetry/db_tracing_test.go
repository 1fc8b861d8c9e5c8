package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type receiptRow struct {
	ID        uint   `gorm:"primaryKey"`
	Number    string `gorm:"size:32"`
	CreatedAt time.Time
}

func setupTracingDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&receiptRow{}))
	return db
}

func recordingSpan(t *testing.T) (context.Context, *tracetest.SpanRecorder, func()) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("test").Start(context.Background(), "record-payment")
	return ctx, recorder, func() { span.End() }
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingPlugin_DisabledIsNoOp(t *testing.T) {
	db := setupTracingDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	require.NoError(t, plugin.RegisterOtelGorm(db))

	// No callbacks registered means inserts still work untouched
	require.NoError(t, db.Create(&receiptRow{Number: "RCP-202608-00001"}).Error)
}

func TestDBTracingPlugin_EnabledRegisters(t *testing.T) {
	db := setupTracingDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	require.NoError(t, plugin.RegisterOtelGorm(db))

	ctx, recorder, end := recordingSpan(t)
	require.NoError(t, db.WithContext(ctx).Create(&receiptRow{Number: "RCP-202608-00002"}).Error)
	end()

	assert.NotEmpty(t, recorder.Ended())
}

func TestDBTracingPlugin_FullSQLOption(t *testing.T) {
	db := setupTracingDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.LogFullSQL = true
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	assert.NoError(t, plugin.RegisterOtelGorm(db))
}

// statementFor builds a session whose statement mimics a finished query,
// so the after-callback can be driven directly without depending on the
// order gorm runs it relative to the otelgorm span.
func statementFor(ctx context.Context, db *gorm.DB, table string, rows int64, queryErr error) *gorm.DB {
	session := db.Session(&gorm.Session{NewDB: true})
	session.Statement.Context = ctx
	session.Statement.Table = table
	session.Statement.RowsAffected = rows
	session.Error = queryErr
	return session
}

func TestSlowQueryCallback_Attributes(t *testing.T) {
	db := setupTracingDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.SlowQueryThresh = time.Nanosecond
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	ctx, recorder, end := recordingSpan(t)
	ctx = context.WithValue(ctx, queryStartTimeKey, time.Now().Add(-time.Millisecond))

	plugin.slowQueryCallback(statementFor(ctx, db, "payment_receipts", 1, nil))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	attrs := map[attribute.Key]attribute.Value{}
	for _, a := range spans[0].Attributes() {
		attrs[a.Key] = a.Value
	}
	assert.Equal(t, int64(1), attrs["db.rows_affected"].AsInt64())
	assert.Equal(t, "payment_receipts", attrs["db.sql.table"].AsString())
	assert.True(t, attrs["db.slow_query"].AsBool())

	var sawSlowEvent bool
	for _, e := range spans[0].Events() {
		if e.Name == "slow_query_warning" {
			sawSlowEvent = true
			for _, a := range e.Attributes {
				if a.Key == "threshold_ms" {
					assert.Equal(t, int64(0), a.Value.AsInt64())
				}
			}
		}
	}
	assert.True(t, sawSlowEvent)
}

func TestSlowQueryCallback_FastQueryNotFlagged(t *testing.T) {
	db := setupTracingDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.SlowQueryThresh = time.Minute
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	ctx, recorder, end := recordingSpan(t)
	ctx = context.WithValue(ctx, queryStartTimeKey, time.Now())

	plugin.slowQueryCallback(statementFor(ctx, db, "invoices", 1, nil))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	for _, a := range spans[0].Attributes() {
		assert.NotEqual(t, attribute.Key("db.slow_query"), a.Key)
	}
}

func TestSlowQueryCallback_RecordNotFoundIsNotAnError(t *testing.T) {
	db := setupTracingDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	ctx, recorder, end := recordingSpan(t)
	plugin.slowQueryCallback(statementFor(ctx, db, "invoices", 0, gorm.ErrRecordNotFound))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSlowQueryCallback_QueryErrorRecorded(t *testing.T) {
	db := setupTracingDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	ctx, recorder, end := recordingSpan(t)
	plugin.slowQueryCallback(statementFor(ctx, db, "invoices", 0, gorm.ErrInvalidTransaction))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestSlowQueryCallback_NilContext(t *testing.T) {
	db := setupTracingDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	session := db.Session(&gorm.Session{NewDB: true})
	session.Statement.Context = nil

	assert.NotPanics(t, func() { plugin.slowQueryCallback(session) })
}

func TestSlowQueryCallback_NonRecordingSpan(t *testing.T) {
	db := setupTracingDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	session := db.Session(&gorm.Session{NewDB: true})
	session.Statement.Context = context.Background()

	assert.NotPanics(t, func() { plugin.slowQueryCallback(session) })
}

func TestDBTracingPlugin_DoubleRegistrationFails(t *testing.T) {
	db := setupTracingDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	require.NoError(t, plugin.RegisterOtelGorm(db))
	// gorm rejects duplicate plugin and callback names
	assert.Error(t, plugin.RegisterOtelGorm(db))
}

package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls span generation for gorm queries
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes bound parameters in span statements. Invoice
	// and receipt rows carry customer data, so this stays off outside
	// development.
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns the tracing defaults
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin wires otelgorm into a gorm.DB and layers slow query
// detection on top, so a convert or payment request that stalls in the
// database shows up as a flagged span.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a database tracing plugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm attaches the otelgorm plugin plus the timing
// callbacks to the given DB. A disabled config is a no-op.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerTimingCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)

	return nil
}

// registerTimingCallbacks hooks every gorm operation with a start-time
// capture before, and the slow query check after.
func (p *DBTracingPlugin) registerTimingCallbacks(db *gorm.DB) error {
	before := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
		}
	}

	registrations := []func() error{
		func() error { return db.Callback().Create().Before("gorm:create").Register("otel_timing:before_create", before) },
		func() error { return db.Callback().Query().Before("gorm:query").Register("otel_timing:before_query", before) },
		func() error { return db.Callback().Update().Before("gorm:update").Register("otel_timing:before_update", before) },
		func() error { return db.Callback().Delete().Before("gorm:delete").Register("otel_timing:before_delete", before) },
		func() error { return db.Callback().Row().Before("gorm:row").Register("otel_timing:before_row", before) },
		func() error { return db.Callback().Raw().Before("gorm:raw").Register("otel_timing:before_raw", before) },
		func() error {
			return db.Callback().Create().After("gorm:create").Register("otel_slow_query:create", p.slowQueryCallback)
		},
		func() error {
			return db.Callback().Query().After("gorm:query").Register("otel_slow_query:query", p.slowQueryCallback)
		},
		func() error {
			return db.Callback().Update().After("gorm:update").Register("otel_slow_query:update", p.slowQueryCallback)
		},
		func() error {
			return db.Callback().Delete().After("gorm:delete").Register("otel_slow_query:delete", p.slowQueryCallback)
		},
		func() error { return db.Callback().Row().After("gorm:row").Register("otel_slow_query:row", p.slowQueryCallback) },
		func() error { return db.Callback().Raw().After("gorm:raw").Register("otel_slow_query:raw", p.slowQueryCallback) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	return nil
}

// slowQueryCallback annotates the active span with row counts, table
// name and errors, and flags queries past the slow threshold.
func (p *DBTracingPlugin) slowQueryCallback(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// ErrRecordNotFound is a routine miss, not a span failure
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if startTime, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		elapsed := time.Since(startTime)
		if elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
			))
		}
	}
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

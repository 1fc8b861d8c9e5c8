package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig controls query and connection pool metrics for the
// billing database.
type DBMetricsConfig struct {
	Enabled bool
	// Queries slower than this count toward db_slow_query_total.
	SlowQueryThreshold time.Duration
	// How often the connection pool gauges are sampled.
	PoolStatsInterval time.Duration
}

// DefaultDBMetricsConfig returns the defaults used by the server.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics bundles the database instruments: per-operation query
// counts and latencies, a slow query counter keyed by table, and
// connection pool gauges sampled on a ticker.
type DBMetrics struct {
	poolConnections    *Gauge
	poolConnectionsMax *Gauge
	queryTotal         *Counter
	queryDuration      *Histogram
	slowQueryTotal     *Counter

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewDBMetrics creates the instruments on the given meter. Zero
// thresholds and intervals fall back to the defaults.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	poolConnections, err := NewGauge(
		meter,
		"db_pool_connections",
		"Number of connections in the pool by state",
		"{connection}",
	)
	if err != nil {
		return nil, err
	}

	poolConnectionsMax, err := NewGauge(
		meter,
		"db_pool_connections_max",
		"Maximum number of connections in the pool",
		"{connection}",
	)
	if err != nil {
		return nil, err
	}

	queryTotal, err := NewCounter(
		meter,
		"db_query_total",
		"Total number of database queries by operation type",
		"{query}",
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	slowQueryTotal, err := NewCounter(
		meter,
		"db_slow_query_total",
		"Total number of queries over the slow query threshold",
		"{query}",
	)
	if err != nil {
		return nil, err
	}

	return &DBMetrics{
		poolConnections:    poolConnections,
		poolConnectionsMax: poolConnectionsMax,
		queryTotal:         queryTotal,
		queryDuration:      queryDuration,
		slowQueryTotal:     slowQueryTotal,
		config:             cfg,
		logger:             logger,
		stopCh:             make(chan struct{}),
	}, nil
}

// SetSQLDB provides the sql.DB whose pool is sampled. Must happen
// before StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection samples the connection pool on the
// configured interval until Stop is called or ctx is cancelled.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection: sqlDB not set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)

		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Started database connection pool stats collection",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		return
	}

	stats := sqlDB.Stats()

	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))

	// open = idle + in_use. WaitCount is cumulative, not a state, so it
	// is left out of the gauge.
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop halts the sampling goroutine. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery counts one query and its latency. A query over the slow
// threshold additionally increments the slow counter keyed by table.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation string, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		tableName := table
		if tableName == "" {
			tableName = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(tableName))
	}
}

// DBMetricsPlugin is a gorm plugin that times every statement and
// feeds DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

// NewDBMetricsPlugin wraps a DBMetrics in a gorm plugin.
func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{
		metrics: metrics,
		logger:  logger,
	}
}

// Name implements gorm.Plugin.
func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

// Initialize implements gorm.Plugin. A before callback stamps the
// start time into the statement context and an after callback records
// the elapsed time.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	before := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		db.Statement.Context = context.WithValue(ctx, dbMetricsStartTimeKey, time.Now())
	}

	// Row and Raw statements do not know their verb, so it is sniffed
	// from the SQL text.
	fromSQL := func(db *gorm.DB) {
		p.record(db, detectOperationType(db.Statement.SQL.String()))
	}

	registrations := []func() error{
		func() error {
			return db.Callback().Create().Before("gorm:create").Register("db_metrics:before_create", before)
		},
		func() error {
			return db.Callback().Query().Before("gorm:query").Register("db_metrics:before_query", before)
		},
		func() error {
			return db.Callback().Update().Before("gorm:update").Register("db_metrics:before_update", before)
		},
		func() error {
			return db.Callback().Delete().Before("gorm:delete").Register("db_metrics:before_delete", before)
		},
		func() error {
			return db.Callback().Row().Before("gorm:row").Register("db_metrics:before_row", before)
		},
		func() error {
			return db.Callback().Raw().Before("gorm:raw").Register("db_metrics:before_raw", before)
		},
		func() error {
			return db.Callback().Create().After("gorm:create").Register("db_metrics:after_create", func(db *gorm.DB) {
				p.record(db, "INSERT")
			})
		},
		func() error {
			return db.Callback().Query().After("gorm:query").Register("db_metrics:after_query", func(db *gorm.DB) {
				p.record(db, "SELECT")
			})
		},
		func() error {
			return db.Callback().Update().After("gorm:update").Register("db_metrics:after_update", func(db *gorm.DB) {
				p.record(db, "UPDATE")
			})
		},
		func() error {
			return db.Callback().Delete().After("gorm:delete").Register("db_metrics:after_delete", func(db *gorm.DB) {
				p.record(db, "DELETE")
			})
		},
		func() error {
			return db.Callback().Row().After("gorm:row").Register("db_metrics:after_row", fromSQL)
		},
		func() error {
			return db.Callback().Raw().After("gorm:raw").Register("db_metrics:after_raw", fromSQL)
		},
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	p.logger.Info("Database metrics plugin initialized")
	return nil
}

func (p *DBMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var duration time.Duration
	if startTime, ok := ctx.Value(dbMetricsStartTimeKey).(time.Time); ok {
		duration = time.Since(startTime)
	}

	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration)
}

func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}

type dbMetricsContextKey string

const dbMetricsStartTimeKey dbMetricsContextKey = "db_metrics_start_time"

// RegisterDBMetrics wires query and pool metrics onto a gorm DB. The
// returned DBMetrics owns the sampling goroutine; call Stop on
// shutdown. Returns nil without error when metrics are off.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		logger.Debug("Database metrics disabled, skipping registration")
		return nil, nil
	}

	if meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("MeterProvider not available, skipping database metrics")
		return nil, nil
	}

	meter := meterProvider.Meter("db.client")

	metrics, err := NewDBMetrics(meter, cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.SetSQLDB(sqlDB)

	plugin := NewDBMetricsPlugin(metrics, logger)
	if err := db.Use(plugin); err != nil {
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval),
	)

	return metrics, nil
}

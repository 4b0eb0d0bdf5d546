// Database metrics: query counts and latency via GORM callbacks, plus a
// periodic sampler for connection pool state. The ledger is write-heavy, so
// query latency by operation is the first thing to look at when checkout
// slows down.
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

// DBMetricsConfig controls database metrics collection.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DefaultDBMetricsConfig returns the standard collection settings.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics holds the database instruments and the pool sampler state.
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

// NewDBMetrics builds the database instruments on the given meter.
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

	poolConnections, err := NewGauge(meter,
		"db_pool_connections", "Number of connections in the pool by state", "{connection}")
	if err != nil {
		return nil, err
	}
	poolConnectionsMax, err := NewGauge(meter,
		"db_pool_connections_max", "Maximum number of connections in the pool", "{connection}")
	if err != nil {
		return nil, err
	}
	queryTotal, err := NewCounter(meter,
		"db_query_total", "Total number of database queries by operation type", "{query}")
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
	slowQueryTotal, err := NewCounter(meter,
		"db_slow_query_total", "Total number of queries over the slow threshold", "{query}")
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

// SetSQLDB hands the pool handle to the sampler. Must be called before
// StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection samples pool stats on the configured interval
// until Stop or context cancellation.
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
		zap.Duration("interval", m.config.PoolStatsInterval))
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
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop terminates the sampler. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records count and latency for one query; queries over the slow
// threshold also bump the slow counter labeled by table.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// DBMetricsPlugin feeds query timings from GORM callbacks into DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{metrics: metrics, logger: logger}
}

func (p *DBMetricsPlugin) Name() string { return "db_metrics" }

// Initialize hooks a timer in before every operation and a recorder after it.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	before := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		db.Statement.Context = context.WithValue(ctx, dbMetricsStartTimeKey, time.Now())
	}

	type register func(name string, fn func(*gorm.DB)) error
	hooks := []struct {
		name      string
		operation string // empty means detect from the SQL text
		before    register
		after     register
	}{
		{"create", "INSERT",
			db.Callback().Create().Before("gorm:create").Register,
			db.Callback().Create().After("gorm:create").Register},
		{"query", "SELECT",
			db.Callback().Query().Before("gorm:query").Register,
			db.Callback().Query().After("gorm:query").Register},
		{"update", "UPDATE",
			db.Callback().Update().Before("gorm:update").Register,
			db.Callback().Update().After("gorm:update").Register},
		{"delete", "DELETE",
			db.Callback().Delete().Before("gorm:delete").Register,
			db.Callback().Delete().After("gorm:delete").Register},
		{"row", "",
			db.Callback().Row().Before("gorm:row").Register,
			db.Callback().Row().After("gorm:row").Register},
		{"raw", "",
			db.Callback().Raw().Before("gorm:raw").Register,
			db.Callback().Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		h := h
		if err := h.before("db_metrics:before_"+h.name, before); err != nil {
			return err
		}
		after := func(db *gorm.DB) {
			op := h.operation
			if op == "" {
				op = detectOperationType(db.Statement.SQL.String())
			}
			p.record(db, op)
		}
		if err := h.after("db_metrics:after_"+h.name, after); err != nil {
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

// RegisterDBMetrics wires query metrics and the pool sampler onto a GORM
// instance. Returns nil without error when metrics are disabled; callers own
// Stop on the returned instance.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		logger.Debug("Database metrics disabled, skipping registration")
		return nil, nil
	}
	if meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("MeterProvider not available, skipping database metrics")
		return nil, nil
	}

	metrics, err := NewDBMetrics(meterProvider.Meter("db.client"), cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.SetSQLDB(sqlDB)

	if err := db.Use(NewDBMetricsPlugin(metrics, logger)); err != nil {
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval),
	)
	return metrics, nil
}

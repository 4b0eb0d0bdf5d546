// Query-level tracing over otelgorm. The plugin emits one span per query; we
// layer rows-affected, table, error status, and slow-query annotations on top
// so a slow checkout trace points at the offending statement.
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

// DBTracingConfig controls database span generation.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include query variables in spans; leave off outside dev
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns the standard tracing settings.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin registers otelgorm plus slow-query annotation callbacks.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm installs the otelgorm plugin and the timing callbacks on
// the GORM instance. No-op when tracing is disabled.
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

func (p *DBTracingPlugin) registerTimingCallbacks(db *gorm.DB) error {
	before := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
		}
	}

	type register func(name string, fn func(*gorm.DB)) error
	hooks := []struct {
		name   string
		before register
		after  register
	}{
		{"create",
			db.Callback().Create().Before("gorm:create").Register,
			db.Callback().Create().After("gorm:create").Register},
		{"query",
			db.Callback().Query().Before("gorm:query").Register,
			db.Callback().Query().After("gorm:query").Register},
		{"update",
			db.Callback().Update().Before("gorm:update").Register,
			db.Callback().Update().After("gorm:update").Register},
		{"delete",
			db.Callback().Delete().Before("gorm:delete").Register,
			db.Callback().Delete().After("gorm:delete").Register},
		{"row",
			db.Callback().Row().Before("gorm:row").Register,
			db.Callback().Row().After("gorm:row").Register},
		{"raw",
			db.Callback().Raw().Before("gorm:raw").Register,
			db.Callback().Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("otel_timing:before_"+h.name, before); err != nil {
			return err
		}
		if err := h.after("otel_slow_query:"+h.name, p.annotateSpan); err != nil {
			return err
		}
	}
	return nil
}

// annotateSpan runs after each operation, enriching the otelgorm span.
func (p *DBTracingPlugin) annotateSpan(db *gorm.DB) {
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

	// Not-found is a normal outcome for lookups, not a span error.
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

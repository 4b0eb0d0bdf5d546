// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics provides business metrics for the movement ledger core.
// It tracks posted transactions, payment authorizations, and ledger health.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	transactionPostedTotal *Counter
	transactionAmountTotal *Counter
	movementAppendedTotal  *Counter
	reversalTotal          *Counter
	authorizationTotal     *Counter

	// Gauge metrics (point-in-time values)
	serialUnitsByStatus *Gauge
	openTransferBatches *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data providers for periodic collection
	ledgerProvider LedgerMetricsProvider
}

// LedgerMetricsProvider provides ledger data for periodic metrics collection.
// The interface lets the telemetry layer query posting state without
// depending on the domain packages directly.
type LedgerMetricsProvider interface {
	// GetSerialUnitCountByStatus returns the number of serial units per lifecycle status
	GetSerialUnitCountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error)

	// GetOpenTransferBatchCount returns the number of transfer batches still in transit
	GetOpenTransferBatchCount(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	LedgerProvider  LedgerMetricsProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:          cfg.Meter,
		logger:         logger,
		stopChan:       make(chan struct{}),
		ledgerProvider: cfg.LedgerProvider,
	}

	var err error

	bm.transactionPostedTotal, err = NewCounter(
		cfg.Meter,
		"retailcore_transaction_posted_total",
		"Total number of posted transaction headers",
		"{transactions}",
	)
	if err != nil {
		return nil, err
	}

	bm.transactionAmountTotal, err = NewCounter(
		cfg.Meter,
		"retailcore_transaction_amount_total",
		"Total transaction amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	bm.movementAppendedTotal, err = NewCounter(
		cfg.Meter,
		"retailcore_movement_appended_total",
		"Total number of stock movements appended to the ledger",
		"{movements}",
	)
	if err != nil {
		return nil, err
	}

	bm.reversalTotal, err = NewCounter(
		cfg.Meter,
		"retailcore_ledger_reversal_total",
		"Total number of reversed transactions",
		"{reversals}",
	)
	if err != nil {
		return nil, err
	}

	bm.authorizationTotal, err = NewCounter(
		cfg.Meter,
		"retailcore_payment_authorization_total",
		"Total number of payment authorization attempts",
		"{authorizations}",
	)
	if err != nil {
		return nil, err
	}

	bm.serialUnitsByStatus, err = NewGauge(
		cfg.Meter,
		"retailcore_serial_units",
		"Current number of serial units per lifecycle status",
		"{units}",
	)
	if err != nil {
		return nil, err
	}

	bm.openTransferBatches, err = NewGauge(
		cfg.Meter,
		"retailcore_open_transfer_batches",
		"Number of transfer batches shipped but not yet received",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Transaction Metrics
// =============================================================================

// RecordTransactionPosted records a completed transaction header.
// This should be called from the orchestrator after commit.
func (bm *BusinessMetrics) RecordTransactionPosted(ctx context.Context, tenantID uuid.UUID, txType string) {
	bm.transactionPostedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrTransactionType.String(txType),
	)
}

// RecordTransactionAmount records the posted total amount.
// Amount should be in the smallest currency unit (cents).
func (bm *BusinessMetrics) RecordTransactionAmount(ctx context.Context, tenantID uuid.UUID, txType string, amountCents int64) {
	bm.transactionAmountTotal.Add(ctx, amountCents,
		AttrTenantID.String(tenantID.String()),
		AttrTransactionType.String(txType),
	)
}

// RecordTransactionWithAmount is a convenience method that records both count and amount.
func (bm *BusinessMetrics) RecordTransactionWithAmount(ctx context.Context, tenantID uuid.UUID, txType string, amount decimal.Decimal) {
	bm.RecordTransactionPosted(ctx, tenantID, txType)

	amountCents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	bm.RecordTransactionAmount(ctx, tenantID, txType, amountCents)
}

// RecordMovementsAppended records a set of movements landing in the ledger.
func (bm *BusinessMetrics) RecordMovementsAppended(ctx context.Context, tenantID uuid.UUID, kind string, count int64) {
	bm.movementAppendedTotal.Add(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrMovementKind.String(kind),
	)
}

// RecordReversal records a reversed transaction.
func (bm *BusinessMetrics) RecordReversal(ctx context.Context, tenantID uuid.UUID) {
	bm.reversalTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
	)
}

// =============================================================================
// Payment Metrics
// =============================================================================

// AuthorizationStatus represents the outcome of a payment authorization for metrics labeling.
type AuthorizationStatus string

const (
	AuthorizationStatusApproved AuthorizationStatus = "approved"
	AuthorizationStatusDeclined AuthorizationStatus = "declined"
)

// RecordAuthorization records a payment authorization attempt.
func (bm *BusinessMetrics) RecordAuthorization(ctx context.Context, tenantID uuid.UUID, method string, status AuthorizationStatus) {
	bm.authorizationTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrPaymentMethod.String(method),
		AttrPaymentStatus.String(string(status)),
	)
}

// =============================================================================
// Ledger Gauges
// =============================================================================

// RecordSerialUnitCount records the current number of units in a lifecycle status.
// This is a gauge metric that should be updated periodically.
func (bm *BusinessMetrics) RecordSerialUnitCount(ctx context.Context, tenantID uuid.UUID, status string, count int64) {
	bm.serialUnitsByStatus.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrSerialStatus.String(status),
	)
}

// RecordOpenTransferBatches records the number of in-transit transfer batches.
func (bm *BusinessMetrics) RecordOpenTransferBatches(ctx context.Context, tenantID uuid.UUID, count int64) {
	bm.openTransferBatches.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// This is non-blocking - use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go bm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.collectLedgerMetrics(ctx, tenantProvider)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic business metrics collection")
			return
		case <-ticker.C:
			bm.collectLedgerMetrics(ctx, tenantProvider)
		}
	}
}

// collectLedgerMetrics collects ledger gauge metrics for all tenants.
func (bm *BusinessMetrics) collectLedgerMetrics(ctx context.Context, tenantProvider TenantProvider) {
	if bm.ledgerProvider == nil {
		bm.logger.Debug("No ledger provider configured, skipping ledger metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		bm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		bm.collectTenantLedgerMetrics(ctx, tenantID)
	}
}

// collectTenantLedgerMetrics collects ledger metrics for a single tenant.
func (bm *BusinessMetrics) collectTenantLedgerMetrics(ctx context.Context, tenantID uuid.UUID) {
	unitsByStatus, err := bm.ledgerProvider.GetSerialUnitCountByStatus(ctx, tenantID)
	if err != nil {
		bm.logger.Warn("Failed to get serial unit counts for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		for status, count := range unitsByStatus {
			bm.RecordSerialUnitCount(ctx, tenantID, status, count)
		}
	}

	openBatches, err := bm.ledgerProvider.GetOpenTransferBatchCount(ctx, tenantID)
	if err != nil {
		bm.logger.Warn("Failed to get open transfer batch count for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		bm.RecordOpenTransferBatches(ctx, tenantID, openBatches)
	}
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// =============================================================================
// Attribute Key Constants
// =============================================================================

// Business metrics attribute keys not already defined in metrics.go
var (
	AttrTransactionType = attribute.Key("transaction_type")
	AttrMovementKind    = attribute.Key("movement_kind")
	AttrSerialStatus    = attribute.Key("serial_status")
)

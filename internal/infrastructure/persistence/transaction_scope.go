package persistence

import (
	"context"

	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/transaction"
	"gorm.io/gorm"
)

// GormTransactionScope implements the orchestrator's TransactionScope using
// GORM transactions. Every repository handed to the callback is bound to the
// same database transaction, so header, details, serial transitions and
// ledger appends commit together or not at all.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos orchestrator.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// MovementRepo returns the movement repository scoped to the current transaction
func (r *gormTransactionalRepositories) MovementRepo() ledger.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

// SerialUnitRepo returns the serial unit repository scoped to the current transaction
func (r *gormTransactionalRepositories) SerialUnitRepo() lifecycle.SerialUnitRepository {
	return NewGormSerialUnitRepository(r.tx)
}

// BatchRepo returns the batch repository scoped to the current transaction
func (r *gormTransactionalRepositories) BatchRepo() lifecycle.BatchRepository {
	return NewGormBatchRepository(r.tx)
}

// TransactionRepo returns the transaction header repository scoped to the current transaction
func (r *gormTransactionalRepositories) TransactionRepo() transaction.Repository {
	return NewGormTransactionRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ orchestrator.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ orchestrator.TransactionalRepositories = (*gormTransactionalRepositories)(nil)

package orchestrator

import (
	"context"

	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/transaction"
)

// TransactionalRepositories exposes the repositories bound to one database
// transaction. Everything obtained from the same instance shares a commit.
type TransactionalRepositories interface {
	// MovementRepo returns the movement repository bound to this transaction
	MovementRepo() ledger.MovementRepository
	// SerialUnitRepo returns the serial unit repository bound to this transaction
	SerialUnitRepo() lifecycle.SerialUnitRepository
	// BatchRepo returns the batch repository bound to this transaction
	BatchRepo() lifecycle.BatchRepository
	// TransactionRepo returns the transaction header repository bound to this transaction
	TransactionRepo() transaction.Repository
}

// TransactionScope executes a function within a database transaction.
// The ledger append, lifecycle transitions and header write of one business
// operation all happen inside a single scope so they commit or roll back
// together.
type TransactionScope interface {
	// Execute runs fn in a transaction, committing on nil and rolling back on error
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Cancel voids a completed transaction: every movement it posted is reversed
// by an additive compensating entry, sold serial units return to stock, and
// the header is marked cancelled. The original movements and amounts are
// never touched.
//
// Cancelling an already-cancelled transaction succeeds without posting
// anything. Cancellations outside the policy window or above the amount
// limit require a valid elevated-approval token.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transaction", "cancel")
	defer span.End()
	telemetry.SetAttributes(span,
		"tenant_id", req.TenantID.String(),
		telemetry.SpanAttrTransactionID, req.HeaderID.String(),
	)

	if req.TenantID == uuid.Nil || req.HeaderID == uuid.Nil {
		return failure("tenant and header are required"), nil
	}
	if req.Reason == "" {
		return failure("a cancellation reason is required"), nil
	}

	var (
		header      *transaction.Header
		reversalIDs []uuid.UUID
		noop        bool
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		h, err := repos.TransactionRepo().FindByIDForTenant(ctx, req.TenantID, req.HeaderID)
		if err != nil {
			return err
		}
		if h.Status == transaction.StatusCancelled {
			noop = true
			return nil
		}
		if err := s.requireApproval(ctx, h, req.ApprovalToken, ApprovalActionCancel); err != nil {
			return err
		}

		ledgerSvc := ledger.NewService(repos.MovementRepo(), s.cache)
		ids, err := ledgerSvc.Reverse(ctx, h.ID, req.Reason, &req.OperatorID)
		if err != nil {
			return err
		}

		units, err := repos.SerialUnitRepo().FindBySoldTransaction(ctx, h.ID)
		if err != nil {
			return err
		}
		for i := range units {
			unit := &units[i]
			if unit.Status != lifecycle.SerialStatusSold {
				continue
			}
			if err := unit.ReturnToStock(); err != nil {
				return err
			}
			if err := repos.SerialUnitRepo().UpdateStatusCAS(ctx, unit, lifecycle.SerialStatusSold); err != nil {
				return err
			}
		}

		if err := h.MarkCancelled(req.Reason); err != nil {
			return err
		}
		if err := repos.TransactionRepo().Save(ctx, h); err != nil {
			return err
		}

		header = h
		reversalIDs = ids
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return classify(err)
	}

	if noop {
		return &Result{Success: true, HeaderID: req.HeaderID, AlreadyProcessed: true}, nil
	}

	s.publishAggregate(ctx, header)
	if len(reversalIDs) > 0 {
		if perr := s.publisher.Publish(ctx,
			ledger.NewLedgerReversedEvent(header.TenantID, header.ID, reversalIDs, req.Reason)); perr != nil {
			s.logger.Warn("failed to publish reversal event", zap.Error(perr))
		}
	}
	s.logger.Info("transaction cancelled",
		zap.String("number", header.Number),
		zap.Int("reversals", len(reversalIDs)))

	return &Result{
		Success:        true,
		HeaderID:       header.ID,
		Number:         header.Number,
		SubtotalAmount: header.Subtotal,
		TaxAmount:      header.TaxAmount,
		TotalAmount:    header.TotalAmount,
		MovementIDs:    reversalIDs,
	}, nil
}

package orchestrator

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferShip posts the outbound leg of a stock transfer: the shipped
// quantities leave their source batches and an open destination batch is
// created under the transfer's document number, its lineage pointing back at
// the source batches. The open batch is the in-transit marker; receiving
// closes it.
func (s *Service) TransferShip(ctx context.Context, req TransferShipRequest) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "ship")
	defer span.End()
	telemetry.SetAttributes(span,
		"tenant_id", req.TenantID.String(),
		"line_count", len(req.Lines),
	)

	if reasons := validateTransferShipRequest(req); len(reasons) > 0 {
		return failure(reasons...), nil
	}

	var (
		header      *transaction.Header
		movementIDs []uuid.UUID
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		number, err := repos.TransactionRepo().GenerateNumber(ctx, req.TenantID, transaction.TypeTransfer)
		if err != nil {
			return err
		}
		h, err := transaction.NewHeader(req.TenantID, number, transaction.TypeTransfer)
		if err != nil {
			return err
		}
		h.WithOperator(req.OperatorID)
		h.Reason = req.Reason

		// Destination batch shares the document number so receiving can
		// find it without a cross-reference table.
		dest, err := lifecycle.NewBatch(req.TenantID, number, lifecycle.BatchTypeTransfer)
		if err != nil {
			return err
		}
		parentIDs := distinctBatchIDs(req.Lines)
		if err := lifecycle.ValidateLineage(ctx, repos.BatchRepo(), dest.ID, parentIDs); err != nil {
			return err
		}
		dest.ParentIDs = parentIDs
		if err := repos.BatchRepo().Save(ctx, dest); err != nil {
			return err
		}

		// Locked in sorted order before any sufficiency read, same discipline
		// as checkout: a concurrent draw on the same product queues behind
		// this transaction instead of racing the check.
		for _, productID := range distinctProductIDs(req.Lines) {
			if err := repos.MovementRepo().LockStockKey(ctx, req.TenantID, productID); err != nil {
				return err
			}
		}

		movements := make([]*ledger.Movement, 0, len(req.Lines))
		for _, line := range req.Lines {
			product, err := s.catalog.GetProduct(ctx, req.TenantID, line.ProductID)
			if err != nil {
				return err
			}

			soh, err := repos.MovementRepo().SumQuantity(ctx, req.TenantID, line.ProductID, line.SourceBatchID)
			if err != nil {
				return err
			}
			if soh.LessThan(line.Quantity) {
				return shared.NewDomainError("INSUFFICIENT_STOCK",
					"Insufficient stock for product "+product.SKU)
			}

			detail, err := transaction.NewDetail(
				line.ProductID, product.SKU, product.Name,
				line.Quantity, decimal.Zero, decimal.Zero,
				decimal.Zero, decimal.Zero, product.CostPrice,
			)
			if err != nil {
				return err
			}
			if line.SourceBatchID != nil {
				detail.WithBatchID(*line.SourceBatchID)
			}
			if err := h.AddDetail(detail); err != nil {
				return err
			}

			out, err := ledger.NewMovement(
				req.TenantID, line.ProductID, ledger.MovementKindTransferOut,
				line.Quantity.Neg(), product.CostPrice, h.ID, detail.ID,
			)
			if err != nil {
				return err
			}
			out.WithOperatorID(req.OperatorID).WithReference(number).WithReason(req.Reason)
			if line.SourceBatchID != nil {
				out.WithBatchID(*line.SourceBatchID)
			}
			movements = append(movements, out)
		}

		if err := h.Complete(); err != nil {
			return err
		}
		if err := repos.TransactionRepo().Save(ctx, h); err != nil {
			return err
		}

		ledgerSvc := ledger.NewService(repos.MovementRepo(), s.cache)
		ids, err := ledgerSvc.AppendSet(ctx, movements)
		if err != nil {
			return err
		}

		header = h
		movementIDs = ids
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return classify(err)
	}

	s.publishAggregate(ctx, header)
	s.logger.Info("transfer shipped",
		zap.String("number", header.Number),
		zap.Int("lines", len(header.Details)))

	return &Result{
		Success:     true,
		HeaderID:    header.ID,
		Number:      header.Number,
		MovementIDs: movementIDs,
	}, nil
}

// TransferReceive posts the inbound leg of a shipped transfer. The shipped
// quantities land in the destination batch; any shipped-versus-counted
// discrepancy posts a VARIANCE movement so the missing (or surplus) quantity
// is explained in the ledger rather than silently absorbed. Receiving closes
// the destination batch, and receiving the same transfer again is a no-op.
func (s *Service) TransferReceive(ctx context.Context, req TransferReceiveRequest) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "receive")
	defer span.End()
	telemetry.SetAttributes(span,
		"tenant_id", req.TenantID.String(),
		telemetry.SpanAttrSourceTransactionID, req.TransferHeaderID.String(),
	)

	if req.TenantID == uuid.Nil || req.TransferHeaderID == uuid.Nil {
		return failure("tenant and transfer header are required"), nil
	}

	var (
		header      *transaction.Header
		movementIDs []uuid.UUID
		noop        bool
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		h, err := repos.TransactionRepo().FindByIDForTenant(ctx, req.TenantID, req.TransferHeaderID)
		if err != nil {
			return err
		}
		if h.Type != transaction.TypeTransfer {
			return shared.NewDomainError("VALIDATION_ERROR", "Transaction "+h.Number+" is not a transfer")
		}
		if h.Status != transaction.StatusCompleted {
			return shared.NewDomainError("INVALID_STATE",
				"Transfer "+h.Number+" cannot be received from "+h.Status.String())
		}

		existing, err := repos.MovementRepo().FindBySourceTransaction(ctx, h.ID)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].Kind == ledger.MovementKindTransferIn {
				header = h
				noop = true
				return nil
			}
		}

		dest, err := repos.BatchRepo().FindByBatchNumber(ctx, req.TenantID, h.Number)
		if err != nil {
			return err
		}

		counted := make(map[uuid.UUID]decimal.Decimal, len(req.Lines))
		for _, line := range req.Lines {
			if line.Quantity.IsNegative() {
				return shared.NewDomainError("VALIDATION_ERROR", "Received quantities cannot be negative")
			}
			counted[line.ProductID] = counted[line.ProductID].Add(line.Quantity)
		}
		shipped := make(map[uuid.UUID]bool, len(h.Details))
		for i := range h.Details {
			shipped[h.Details[i].ProductID] = true
		}
		for productID := range counted {
			if !shipped[productID] {
				return shared.NewDomainError("VALIDATION_ERROR", "Received a product that was not shipped")
			}
		}

		var movements []*ledger.Movement
		for i := range h.Details {
			d := &h.Details[i]

			in, err := ledger.NewMovement(
				req.TenantID, d.ProductID, ledger.MovementKindTransferIn,
				d.Quantity, d.CostPrice, h.ID, d.ID,
			)
			if err != nil {
				return err
			}
			in.WithOperatorID(req.OperatorID).WithReference(h.Number).WithBatchID(dest.ID)
			movements = append(movements, in)

			variance := counted[d.ProductID].Sub(d.Quantity)
			if !variance.IsZero() {
				reason := req.Reason
				if reason == "" {
					reason = "transfer count discrepancy"
				}
				v, err := ledger.NewMovement(
					req.TenantID, d.ProductID, ledger.MovementKindVariance,
					variance, d.CostPrice, h.ID, d.ID,
				)
				if err != nil {
					return err
				}
				v.WithOperatorID(req.OperatorID).WithReference(h.Number).WithReason(reason).WithBatchID(dest.ID)
				movements = append(movements, v)
			}
		}

		if err := dest.Close(); err != nil {
			return err
		}
		if err := repos.BatchRepo().Save(ctx, dest); err != nil {
			return err
		}

		ledgerSvc := ledger.NewService(repos.MovementRepo(), s.cache)
		ids, err := ledgerSvc.AppendSet(ctx, movements)
		if err != nil {
			return err
		}

		header = h
		movementIDs = ids
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return classify(err)
	}

	if noop {
		return &Result{Success: true, HeaderID: header.ID, Number: header.Number, AlreadyProcessed: true}, nil
	}

	s.logger.Info("transfer received",
		zap.String("number", header.Number),
		zap.Int("movements", len(movementIDs)))

	return &Result{
		Success:     true,
		HeaderID:    header.ID,
		Number:      header.Number,
		MovementIDs: movementIDs,
	}, nil
}

func distinctProductIDs(lines []TransferLine) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })
	return ids
}

func distinctBatchIDs(lines []TransferLine) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, line := range lines {
		if line.SourceBatchID == nil || seen[*line.SourceBatchID] {
			continue
		}
		seen[*line.SourceBatchID] = true
		ids = append(ids, *line.SourceBatchID)
	}
	return ids
}

func validateTransferShipRequest(req TransferShipRequest) []string {
	var reasons []string
	if req.TenantID == uuid.Nil {
		reasons = append(reasons, "tenant is required")
	}
	if req.OperatorID == uuid.Nil {
		reasons = append(reasons, "operator is required")
	}
	if len(req.Lines) == 0 {
		reasons = append(reasons, "at least one line is required")
	}
	for _, line := range req.Lines {
		if line.ProductID == uuid.Nil {
			reasons = append(reasons, "every line requires a product")
		}
		if line.Quantity.LessThanOrEqual(decimal.Zero) {
			reasons = append(reasons, "transfer quantities must be positive")
		}
	}
	return reasons
}

package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/calculation"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// refundPosition is the refundable remainder of one original detail line.
// Tracking per line, not per product, keeps batch references honest: a sale
// that drew one product from two batches refunds back into the batches it
// actually drew from.
type refundPosition struct {
	detail      *transaction.Detail
	refundedQty decimal.Decimal
}

func (p *refundPosition) remaining() decimal.Decimal {
	return p.detail.Quantity.Sub(p.refundedQty)
}

// effectiveUnit is the discounted per-unit price the customer actually paid
// on this line, rounded to cents.
func (p *refundPosition) effectiveUnit() decimal.Decimal {
	return p.detail.LineTotal.Div(p.detail.Quantity).Round(2)
}

// amountFor prices a refund of qty units from this position. A refund that
// exhausts the line returns every cent of the line not refunded before, so
// rounding on the per-unit price never strands money (R100.00 over three
// units refunds 33.33, 33.33, then 33.34).
func (p *refundPosition) amountFor(qty decimal.Decimal) decimal.Decimal {
	if qty.Equal(p.remaining()) {
		return p.detail.LineTotal.Sub(p.effectiveUnit().Mul(p.refundedQty))
	}
	return p.effectiveUnit().Mul(qty).Round(2)
}

// refundAllocation is one requested quantity resolved onto a position
type refundAllocation struct {
	pos    *refundPosition
	qty    decimal.Decimal
	amount decimal.Decimal
}

// Refund posts a compensating REFUND document against a completed sale. The
// original header is never mutated beyond its refund status; amounts come
// from the effective (discounted) unit price the customer actually paid, and
// inbound movements restore the stock into the batches the sale drew from.
// Damaged serial units are destroyed instead of returning to sellable stock,
// with a write-off movement keeping the ledger honest about the quantity.
//
// Refunded quantity is validated per original detail line against all prior
// refunds of the same original.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transaction", "refund")
	defer span.End()
	telemetry.SetAttributes(span,
		"tenant_id", req.TenantID.String(),
		telemetry.SpanAttrSourceTransactionID, req.OriginalHeaderID.String(),
	)

	if reasons := validateRefundRequest(req); len(reasons) > 0 {
		return failure(reasons...), nil
	}

	done, prior, err := s.markRequestProcessed(ctx, req.RequestKey)
	if err != nil {
		return nil, err
	}
	if done {
		return prior, nil
	}

	result, err := s.refund(ctx, req)
	if err != nil || !result.Success {
		s.releaseRequestKey(ctx, req.RequestKey)
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return result, err
}

func (s *Service) refund(ctx context.Context, req RefundRequest) (*Result, error) {
	var (
		refundHeader *transaction.Header
		original     *transaction.Header
		movementIDs  []uuid.UUID
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		orig, err := repos.TransactionRepo().FindByIDForTenant(ctx, req.TenantID, req.OriginalHeaderID)
		if err != nil {
			return err
		}
		if orig.Status == transaction.StatusCancelled || orig.Status == transaction.StatusRefunded {
			return shared.NewDomainError("INVALID_STATE",
				"Transaction "+orig.Number+" cannot be refunded from "+orig.Status.String())
		}
		if orig.Type != transaction.TypeSale {
			return shared.NewDomainError("VALIDATION_ERROR", "Only sales can be refunded")
		}
		if err := s.requireApproval(ctx, orig, req.ApprovalToken, ApprovalActionRefund); err != nil {
			return err
		}

		priorRefunds, err := repos.TransactionRepo().FindRefundsOfOriginal(ctx, orig.ID)
		if err != nil {
			return err
		}
		positions := buildRefundPositions(orig, priorRefunds)

		number, err := repos.TransactionRepo().GenerateNumber(ctx, req.TenantID, transaction.TypeRefund)
		if err != nil {
			return err
		}
		h, err := transaction.NewHeader(req.TenantID, number, transaction.TypeRefund)
		if err != nil {
			return err
		}
		h.WithOperator(req.OperatorID).WithOriginalHeader(orig.ID)
		h.Reason = req.Reason

		subtotal, tax, total := decimal.Zero, decimal.Zero, decimal.Zero
		var movements []*ledger.Movement

		for _, line := range req.Lines {
			allocs, err := allocateRefund(positions, line)
			if err != nil {
				return err
			}

			product, err := s.catalog.GetProduct(ctx, req.TenantID, line.ProductID)
			if err != nil {
				return err
			}
			rate, err := calculation.NewTaxRate(product.TaxRate)
			if err != nil {
				return err
			}
			if product.Serialized && line.SerialUnitID == nil {
				return shared.NewDomainError("VALIDATION_ERROR",
					"Serialized product "+product.SKU+" requires a serial unit on refund")
			}

			for _, alloc := range allocs {
				pos := alloc.pos.detail

				// The customer gets back what was effectively paid, with
				// VAT re-extracted on the refunded amount.
				amounts, err := calculation.ApplyLineDiscount(alloc.amount, decimal.Zero, rate)
				if err != nil {
					return err
				}

				detail, err := transaction.NewDetail(
					line.ProductID, pos.ProductSKU, pos.ProductName,
					alloc.qty, alloc.pos.effectiveUnit(), decimal.Zero,
					amounts.Tax, amounts.Total, pos.CostPrice,
				)
				if err != nil {
					return err
				}
				if pos.BatchID != nil {
					detail.WithBatchID(*pos.BatchID)
				}
				if line.SerialUnitID != nil {
					detail.WithSerialUnitID(*line.SerialUnitID)
				}
				if err := h.AddDetail(detail); err != nil {
					return err
				}
				subtotal = subtotal.Add(amounts.Subtotal)
				tax = tax.Add(amounts.Tax)
				total = total.Add(amounts.Total)

				in, err := ledger.NewMovement(
					req.TenantID, line.ProductID, ledger.MovementKindRefund,
					alloc.qty, pos.CostPrice, h.ID, detail.ID,
				)
				if err != nil {
					return err
				}
				in.WithOperatorID(req.OperatorID).WithReference(number).WithReason(req.Reason)
				if pos.BatchID != nil {
					in.WithBatchID(*pos.BatchID)
				}
				if line.SerialUnitID != nil {
					in.WithSerialUnitID(*line.SerialUnitID)
				}
				movements = append(movements, in)

				// A damaged unit never re-enters sellable stock; the
				// write-off records where the returned quantity went.
				if line.Damaged {
					reason := line.DamageReason
					if reason == "" {
						reason = "damaged on return"
					}
					off, err := ledger.NewMovement(
						req.TenantID, line.ProductID, ledger.MovementKindAdjustment,
						alloc.qty.Neg(), pos.CostPrice, h.ID, detail.ID,
					)
					if err != nil {
						return err
					}
					off.WithOperatorID(req.OperatorID).WithReference(number).WithReason(reason)
					if pos.BatchID != nil {
						off.WithBatchID(*pos.BatchID)
					}
					if line.SerialUnitID != nil {
						off.WithSerialUnitID(*line.SerialUnitID)
					}
					movements = append(movements, off)
				}
			}

			if product.Serialized {
				if err := s.processRefundedUnit(ctx, repos, orig, line); err != nil {
					return err
				}
			}
		}

		adjustment := calculation.ReconcileRounding(total, subtotal.Add(tax))
		tax = tax.Add(adjustment)
		if err := h.SetTotals(subtotal, tax, decimal.Zero, total); err != nil {
			return err
		}

		if reasons := validateTenders(req.Tenders, total); len(reasons) > 0 {
			return shared.NewDomainError("VALIDATION_ERROR", reasons[0])
		}

		if err := h.Complete(); err != nil {
			return err
		}
		if err := repos.TransactionRepo().Save(ctx, h); err != nil {
			return err
		}

		full := true
		for _, pos := range positions {
			if pos.remaining().GreaterThan(decimal.Zero) {
				full = false
				break
			}
		}
		if err := orig.MarkRefunded(full); err != nil {
			return err
		}
		if err := repos.TransactionRepo().Save(ctx, orig); err != nil {
			return err
		}

		ledgerSvc := ledger.NewService(repos.MovementRepo(), s.cache)
		ids, err := ledgerSvc.AppendSet(ctx, movements)
		if err != nil {
			return err
		}

		refundHeader = h
		original = orig
		movementIDs = ids
		return nil
	})
	if err != nil {
		return classify(err)
	}

	s.publishAggregate(ctx, refundHeader)
	s.publishAggregate(ctx, original)
	s.logger.Info("refund posted",
		zap.String("number", refundHeader.Number),
		zap.String("original", original.Number),
		zap.String("total", refundHeader.TotalAmount.String()))

	return &Result{
		Success:        true,
		HeaderID:       refundHeader.ID,
		Number:         refundHeader.Number,
		SubtotalAmount: refundHeader.Subtotal,
		TaxAmount:      refundHeader.TaxAmount,
		TotalAmount:    refundHeader.TotalAmount,
		MovementIDs:    movementIDs,
	}, nil
}

// processRefundedUnit transitions the returned serial unit: back to stock,
// or destroyed when damaged. The transition persists as a compare-and-swap
// from SOLD.
func (s *Service) processRefundedUnit(ctx context.Context, repos TransactionalRepositories, orig *transaction.Header, line RefundLine) error {
	unit, err := repos.SerialUnitRepo().FindByIDForTenant(ctx, orig.TenantID, *line.SerialUnitID)
	if err != nil {
		return err
	}
	if unit.SoldInTransactionID == nil || *unit.SoldInTransactionID != orig.ID {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Serial unit "+unit.SerialNumber+" was not sold in the original transaction")
	}
	if line.Damaged {
		reason := line.DamageReason
		if reason == "" {
			reason = "damaged on return"
		}
		if err := unit.Destroy(reason); err != nil {
			return err
		}
	} else {
		if err := unit.ReturnToStock(); err != nil {
			return err
		}
	}
	return repos.SerialUnitRepo().UpdateStatusCAS(ctx, unit, lifecycle.SerialStatusSold)
}

// buildRefundPositions maps the original details to positions and settles the
// prior refunds' details against them in original line order. Every refund
// allocates greedily in that same order, so replaying the priors lands each
// refunded quantity back on the line it came from.
func buildRefundPositions(orig *transaction.Header, priors []transaction.Header) []*refundPosition {
	positions := make([]*refundPosition, 0, len(orig.Details))
	for i := range orig.Details {
		positions = append(positions, &refundPosition{
			detail:      &orig.Details[i],
			refundedQty: decimal.Zero,
		})
	}
	for hi := range priors {
		for di := range priors[hi].Details {
			d := &priors[hi].Details[di]
			qty := d.Quantity
			for _, pos := range positions {
				if qty.LessThanOrEqual(decimal.Zero) {
					break
				}
				if !positionMatches(pos.detail, d.ProductID, d.BatchID, d.SerialUnitID) {
					continue
				}
				free := pos.remaining()
				if free.LessThanOrEqual(decimal.Zero) {
					continue
				}
				take := decimal.Min(free, qty)
				pos.refundedQty = pos.refundedQty.Add(take)
				qty = qty.Sub(take)
			}
		}
	}
	return positions
}

// allocateRefund resolves one requested refund line onto the open positions,
// consuming their remaining quantities in original line order.
func allocateRefund(positions []*refundPosition, line RefundLine) ([]refundAllocation, error) {
	qty := line.Quantity
	var allocs []refundAllocation
	matched := false
	sku := ""
	for _, pos := range positions {
		if !positionMatches(pos.detail, line.ProductID, line.BatchID, line.SerialUnitID) {
			continue
		}
		matched = true
		sku = pos.detail.ProductSKU
		free := pos.remaining()
		if free.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(free, qty)
		amount := pos.amountFor(take)
		pos.refundedQty = pos.refundedQty.Add(take)
		allocs = append(allocs, refundAllocation{pos: pos, qty: take, amount: amount})
		qty = qty.Sub(take)
		if qty.LessThanOrEqual(decimal.Zero) {
			break
		}
	}
	if !matched {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product was not on the original transaction")
	}
	if qty.GreaterThan(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR",
			"Refund quantity for "+sku+" exceeds the remaining quantity")
	}
	return allocs, nil
}

// positionMatches compares a detail against a (product, batch, serial)
// selector. Nil selectors match any batch or serial, a set selector must
// match exactly.
func positionMatches(d *transaction.Detail, productID uuid.UUID, batchID, serialUnitID *uuid.UUID) bool {
	if d.ProductID != productID {
		return false
	}
	if batchID != nil && (d.BatchID == nil || *d.BatchID != *batchID) {
		return false
	}
	if serialUnitID != nil && (d.SerialUnitID == nil || *d.SerialUnitID != *serialUnitID) {
		return false
	}
	return true
}

func validateRefundRequest(req RefundRequest) []string {
	var reasons []string
	if req.TenantID == uuid.Nil {
		reasons = append(reasons, "tenant is required")
	}
	if req.OriginalHeaderID == uuid.Nil {
		reasons = append(reasons, "original transaction is required")
	}
	if req.Reason == "" {
		reasons = append(reasons, "a refund reason is required")
	}
	if len(req.Lines) == 0 {
		reasons = append(reasons, "at least one line is required")
	}
	for _, line := range req.Lines {
		if line.ProductID == uuid.Nil {
			reasons = append(reasons, "every line requires a product")
		}
		if line.Quantity.LessThanOrEqual(decimal.Zero) {
			reasons = append(reasons, "refund quantities must be positive")
		}
	}
	return reasons
}

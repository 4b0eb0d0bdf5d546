package orchestrator

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/shared/valueobject"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Checkout posts a sale atomically: it prices the lines, authorizes the
// tenders, claims the serial units, verifies stock sufficiency, writes the
// header with its details, and appends the outbound movements — all within a
// single transaction scope. No movement is appended if any step fails.
//
// A concurrent claim of the same serial unit surfaces as a concurrency
// conflict; the checkout is retried a bounded number of times, and a retry
// that finds the unit no longer sellable fails as a business rejection.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transaction", "checkout")
	defer span.End()
	telemetry.SetAttributes(span,
		"tenant_id", req.TenantID.String(),
		"line_count", len(req.Lines),
	)

	if reasons := validateCheckoutRequest(req); len(reasons) > 0 {
		return failure(reasons...), nil
	}

	done, prior, err := s.markRequestProcessed(ctx, req.RequestKey)
	if err != nil {
		return nil, err
	}
	if done {
		return prior, nil
	}

	var result *Result
	telemetry.WithProfilingLabels(ctx,
		telemetry.OperationLabels("checkout", map[string]string{
			telemetry.ProfilingLabelTenantID: req.TenantID.String(),
		}),
		func(c context.Context) {
			result, err = s.checkout(c, req)
		})
	if err != nil || !result.Success {
		s.releaseRequestKey(ctx, req.RequestKey)
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return result, err
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	priced, amounts, totalDiscount, err := s.priceLines(ctx, req.TenantID, req.Lines, req.HeaderDiscount)
	if err != nil {
		return classify(err)
	}

	for i := range priced {
		if priced[i].product.Serialized {
			if priced[i].req.SerialUnitID == nil {
				return failure("serialized product " + priced[i].product.SKU + " requires a serial unit"), nil
			}
			if !priced[i].req.Quantity.Equal(decimal.NewFromInt(1)) {
				return failure("serialized lines must have a quantity of one"), nil
			}
		}
	}

	if reasons := validateTenders(req.Tenders, amounts.Total); len(reasons) > 0 {
		return failure(reasons...), nil
	}
	if err := s.authorizeTenders(ctx, req.Tenders); err != nil {
		return classify(err)
	}

	var (
		header      *transaction.Header
		movementIDs []uuid.UUID
	)

	for attempt := 0; attempt < s.cfg.ConflictRetries; attempt++ {
		header, movementIDs = nil, nil

		err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			number, err := repos.TransactionRepo().GenerateNumber(ctx, req.TenantID, transaction.TypeSale)
			if err != nil {
				return err
			}
			h, err := transaction.NewHeader(req.TenantID, number, transaction.TypeSale)
			if err != nil {
				return err
			}
			h.WithOperator(req.OperatorID)

			for i := range priced {
				if err := h.AddDetail(priced[i].detail); err != nil {
					return err
				}
			}
			if err := h.SetTotals(amounts.Subtotal, amounts.Tax, totalDiscount, amounts.Total); err != nil {
				return err
			}

			// Serial units: claim each with a compare-and-swap on ASSIGNED so
			// two checkouts can never both consume the same unit.
			for i := range priced {
				if !priced[i].product.Serialized {
					continue
				}
				unit, err := repos.SerialUnitRepo().FindByIDForTenant(ctx, req.TenantID, *priced[i].req.SerialUnitID)
				if err != nil {
					return err
				}
				if unit.ProductID != priced[i].product.ID {
					return shared.NewDomainError("VALIDATION_ERROR",
						"Serial unit "+unit.SerialNumber+" does not belong to product "+priced[i].product.SKU)
				}
				if !unit.IsSellable() {
					return shared.NewDomainError("INVALID_STATE",
						"Serial unit "+unit.SerialNumber+" is not available for sale")
				}
				if err := unit.MarkSold(h.ID); err != nil {
					return err
				}
				if err := repos.SerialUnitRepo().UpdateStatusCAS(ctx, unit, lifecycle.SerialStatusAssigned); err != nil {
					return err
				}
				if unit.BatchID != nil && priced[i].detail.BatchID == nil {
					priced[i].detail.WithBatchID(*unit.BatchID)
				}
			}

			// Fungible lines: derived stock must cover the quantity before
			// the outbound movement is appended. The per-key lock serializes
			// concurrent checkouts of the same product, otherwise two
			// transactions could both read a sufficient sum and oversell.
			// Keys are locked in sorted order to avoid lock-order deadlocks.
			for _, productID := range fungibleProductIDs(priced) {
				if err := repos.MovementRepo().LockStockKey(ctx, req.TenantID, productID); err != nil {
					return err
				}
			}
			for i := range priced {
				if priced[i].product.Serialized {
					continue
				}
				soh, err := repos.MovementRepo().SumQuantity(ctx, req.TenantID, priced[i].product.ID, priced[i].req.BatchID)
				if err != nil {
					return err
				}
				if soh.LessThan(priced[i].req.Quantity) {
					return shared.NewDomainError("INSUFFICIENT_STOCK",
						"Insufficient stock for product "+priced[i].product.SKU)
				}
			}

			if err := h.Complete(); err != nil {
				return err
			}
			if err := repos.TransactionRepo().Save(ctx, h); err != nil {
				return err
			}

			movements := make([]*ledger.Movement, 0, len(priced))
			for i := range priced {
				m, err := ledger.NewMovement(
					req.TenantID,
					priced[i].product.ID,
					ledger.MovementKindSale,
					priced[i].req.Quantity.Neg(),
					priced[i].product.CostPrice,
					h.ID,
					priced[i].detail.ID,
				)
				if err != nil {
					return err
				}
				m.WithOperatorID(req.OperatorID).WithReference(number)
				if priced[i].detail.BatchID != nil {
					m.WithBatchID(*priced[i].detail.BatchID)
				}
				if priced[i].req.SerialUnitID != nil {
					m.WithSerialUnitID(*priced[i].req.SerialUnitID)
				}
				movements = append(movements, m)
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

		if err == nil {
			break
		}
		if shared.IsCode(err, "CONCURRENCY_CONFLICT") {
			s.logger.Info("checkout retrying after concurrent serial claim",
				zap.Int("attempt", attempt+1))
			continue
		}
		break
	}

	if err != nil {
		if shared.IsCode(err, "CONCURRENCY_CONFLICT") {
			return failure("a serial unit was claimed by a concurrent checkout"), nil
		}
		return classify(err)
	}

	s.publishAggregate(ctx, header)
	s.logger.Info("checkout completed",
		zap.String("number", header.Number),
		zap.String("total", header.TotalAmount.String()),
		zap.Int("lines", len(header.Details)))

	return &Result{
		Success:        true,
		HeaderID:       header.ID,
		Number:         header.Number,
		SubtotalAmount: header.Subtotal,
		TaxAmount:      header.TaxAmount,
		TotalAmount:    header.TotalAmount,
		MovementIDs:    movementIDs,
	}, nil
}

// authorizeTenders runs gateway authorization for the card and account legs.
// Cash settles at the drawer and needs no round-trip.
func (s *Service) authorizeTenders(ctx context.Context, tenders []Tender) error {
	if s.payments == nil {
		return nil
	}
	for _, t := range tenders {
		if t.Method == TenderMethodCash {
			continue
		}
		res, err := s.payments.Authorize(ctx, valueobject.NewMoneyZAR(t.Amount), t.Method)
		if err != nil {
			return err
		}
		if !res.Authorized {
			msg := res.Message
			if msg == "" {
				msg = "payment authorization declined"
			}
			return shared.NewDomainError("VALIDATION_ERROR", msg)
		}
	}
	return nil
}

// fungibleProductIDs returns the distinct products of the non-serialized
// lines, sorted so every checkout locks stock keys in the same order
func fungibleProductIDs(priced []pricedLine) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(priced))
	for i := range priced {
		if priced[i].product.Serialized || seen[priced[i].product.ID] {
			continue
		}
		seen[priced[i].product.ID] = true
		ids = append(ids, priced[i].product.ID)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })
	return ids
}

func validateCheckoutRequest(req CheckoutRequest) []string {
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
			reasons = append(reasons, "line quantities must be positive")
		}
		if line.LineDiscount.IsNegative() {
			reasons = append(reasons, "line discounts cannot be negative")
		}
	}
	if req.HeaderDiscount.IsNegative() {
		reasons = append(reasons, "header discount cannot be negative")
	}
	return reasons
}

// Package orchestrator coordinates the transaction operations: checkout,
// cancel, refund, and two-phase transfer. It is the only caller of the
// calculation engine, the serial lifecycle transitions, and the ledger
// append/reverse paths, and it runs every commercial event inside one
// transaction scope so the header, its lines, the lifecycle updates, and the
// movements commit or roll back together.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/calculation"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/domain/transaction/acl"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the policy knobs for the orchestrator
type Config struct {
	// CancelWindow is how long after posting a transaction may be cancelled
	// without elevated approval
	CancelWindow time.Duration
	// ElevatedAmountLimit is the total above which cancel/refund requires
	// elevated approval regardless of age
	ElevatedAmountLimit decimal.Decimal
	// ConflictRetries bounds how often a checkout is retried after a
	// concurrent serial claim
	ConflictRetries int
	// IdempotencyTTL is how long a processed request key is remembered
	IdempotencyTTL time.Duration
}

// DefaultConfig returns the default orchestrator policy
func DefaultConfig() Config {
	return Config{
		CancelWindow:        24 * time.Hour,
		ElevatedAmountLimit: decimal.NewFromInt(5000),
		ConflictRetries:     3,
		IdempotencyTTL:      24 * time.Hour,
	}
}

// Service orchestrates transaction use cases over the domain services
type Service struct {
	scope       TransactionScope
	cache       ledger.StockCache
	catalog     acl.ProductCatalog
	payments    PaymentGateway
	approvals   ApprovalService
	idempotency shared.IdempotencyStore
	publisher   shared.EventPublisher
	logger      *zap.Logger
	cfg         Config
}

// NewService creates the orchestrator. cache, idempotency, and publisher may
// be nil; the corresponding behavior is then skipped.
func NewService(
	scope TransactionScope,
	cache ledger.StockCache,
	catalog acl.ProductCatalog,
	payments PaymentGateway,
	approvals ApprovalService,
	idempotency shared.IdempotencyStore,
	publisher shared.EventPublisher,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = shared.NoOpEventPublisher{}
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = DefaultConfig().ConflictRetries
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultConfig().IdempotencyTTL
	}
	return &Service{
		scope:       scope,
		cache:       cache,
		catalog:     catalog,
		payments:    payments,
		approvals:   approvals,
		idempotency: idempotency,
		publisher:   publisher,
		logger:      logger,
		cfg:         cfg,
	}
}

// businessFailureCodes are domain error codes that represent a rejected
// request rather than an infrastructure fault. They come back to the caller
// as Result.Reasons instead of an error.
var businessFailureCodes = map[string]bool{
	"VALIDATION_ERROR":   true,
	"OUT_OF_RANGE":       true,
	"INVALID_STATE":      true,
	"INSUFFICIENT_STOCK": true,
	"TERMINAL_STATE":     true,
	"ALREADY_REVERSED":   true,
	"NOT_FOUND":          true,
}

// classify maps a scope error to either a failure Result or a hard error
func classify(err error) (*Result, error) {
	if err == nil {
		return nil, nil
	}
	if de, ok := err.(*shared.DomainError); ok && businessFailureCodes[de.Code] {
		return failure(de.Message), nil
	}
	return nil, err
}

// markRequestProcessed claims the request key. Returns (true, result) when
// the key was already processed and the caller should short-circuit.
func (s *Service) markRequestProcessed(ctx context.Context, key string) (bool, *Result, error) {
	if key == "" || s.idempotency == nil {
		return false, nil, nil
	}
	fresh, err := s.idempotency.MarkProcessed(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		return false, nil, shared.ErrStorage
	}
	if !fresh {
		return true, &Result{
			Success:          true,
			AlreadyProcessed: true,
			Reasons:          []string{"request key was already processed"},
		}, nil
	}
	return false, nil, nil
}

// releaseRequestKey frees the key after a failed attempt so the caller can
// retry with the same key
func (s *Service) releaseRequestKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release request key", zap.String("request_key", key), zap.Error(err))
	}
}

// publishAggregate publishes and clears the pending events of an aggregate
func (s *Service) publishAggregate(ctx context.Context, root shared.AggregateRoot) {
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events", zap.Error(err))
	}
	root.ClearDomainEvents()
}

// requireApproval enforces the elevated-approval policy for cancel/refund:
// anything outside the window or above the amount limit needs a valid token.
func (s *Service) requireApproval(ctx context.Context, h *transaction.Header, token string, action ApprovalAction) error {
	inWindow := time.Since(h.TransactionDate) <= s.cfg.CancelWindow
	underLimit := h.TotalAmount.LessThanOrEqual(s.cfg.ElevatedAmountLimit)
	if inWindow && underLimit {
		return nil
	}
	if s.approvals == nil || token == "" {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Elevated approval is required for this "+strings.ToLower(string(action)))
	}
	ok, err := s.approvals.IsElevatedApprovalValid(ctx, token, action)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewDomainError("VALIDATION_ERROR", "Approval token is not valid")
	}
	return nil
}

// pricedLine is one checkout line after snapshotting and calculation
type pricedLine struct {
	req     CheckoutLine
	product *acl.ProductRef
	detail  *transaction.Detail
	rate    calculation.TaxRate
}

// priceLines snapshots each product, runs the calculation pipeline (line
// discounts, header-discount proration, tax extraction), and returns the
// priced lines together with the header amounts.
func (s *Service) priceLines(
	ctx context.Context,
	tenantID uuid.UUID,
	lines []CheckoutLine,
	headerDiscount decimal.Decimal,
) ([]pricedLine, calculation.Amounts, decimal.Decimal, error) {
	priced := make([]pricedLine, 0, len(lines))
	prorationLines := make([]calculation.ProrationLine, 0, len(lines))
	lineIDs := make([]uuid.UUID, len(lines))
	baseTotals := make([]calculation.Amounts, len(lines))

	for i, line := range lines {
		product, err := s.catalog.GetProduct(ctx, tenantID, line.ProductID)
		if err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}
		if err := product.Validate(); err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}
		if !product.Sellable {
			return nil, calculation.Amounts{}, decimal.Zero,
				shared.NewDomainError("VALIDATION_ERROR", "Product "+product.SKU+" is not sellable")
		}
		rate, err := calculation.NewTaxRate(product.TaxRate)
		if err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}

		base, err := calculation.LineItem(product.Price, line.Quantity, rate)
		if err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}
		afterLine, err := calculation.ApplyLineDiscount(base.Total, line.LineDiscount, rate)
		if err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}

		lineIDs[i] = uuid.New()
		baseTotals[i] = base
		prorationLines = append(prorationLines, calculation.ProrationLine{ID: lineIDs[i], Total: afterLine.Total})
		priced = append(priced, pricedLine{req: line, product: product, rate: rate})
	}

	allocations, err := calculation.ProrateHeaderDiscount(headerDiscount, prorationLines)
	if err != nil {
		return nil, calculation.Amounts{}, decimal.Zero, err
	}

	header := calculation.Amounts{Subtotal: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
	totalDiscount := headerDiscount
	for i := range priced {
		lineDiscount := priced[i].req.LineDiscount.Add(allocations[lineIDs[i]])
		final, err := calculation.ApplyLineDiscount(baseTotals[i].Total, lineDiscount, priced[i].rate)
		if err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}

		detail, err := transaction.NewDetail(
			priced[i].product.ID,
			priced[i].product.SKU,
			priced[i].product.Name,
			priced[i].req.Quantity,
			priced[i].product.Price,
			lineDiscount,
			final.Tax,
			final.Total,
			priced[i].product.CostPrice,
		)
		if err != nil {
			return nil, calculation.Amounts{}, decimal.Zero, err
		}
		detail.ID = lineIDs[i]
		if priced[i].req.BatchID != nil {
			detail.WithBatchID(*priced[i].req.BatchID)
		}
		if priced[i].req.SerialUnitID != nil {
			detail.WithSerialUnitID(*priced[i].req.SerialUnitID)
		}
		priced[i].detail = detail

		header.Total = header.Total.Add(final.Total)
		header.Tax = header.Tax.Add(final.Tax)
		header.Subtotal = header.Subtotal.Add(final.Subtotal)
		totalDiscount = totalDiscount.Add(priced[i].req.LineDiscount)
	}

	// Fold any cent-level drift into the tax so the header total stays the
	// literal sum of its lines.
	adjustment := calculation.ReconcileRounding(header.Total, header.Subtotal.Add(header.Tax))
	header.Tax = header.Tax.Add(adjustment)

	return priced, header, totalDiscount, nil
}

// validateTenders checks methods and that the tender sum settles the total
func validateTenders(tenders []Tender, total decimal.Decimal) []string {
	var reasons []string
	if len(tenders) == 0 {
		return []string{"at least one tender is required"}
	}
	sum := decimal.Zero
	for _, t := range tenders {
		if !t.Method.IsValid() {
			reasons = append(reasons, "unknown tender method: "+string(t.Method))
		}
		if t.Amount.LessThanOrEqual(decimal.Zero) {
			reasons = append(reasons, "tender amounts must be positive")
		}
		sum = sum.Add(t.Amount)
	}
	if sum.Sub(total).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
		reasons = append(reasons, "tendered amount does not settle the transaction total")
	}
	return reasons
}

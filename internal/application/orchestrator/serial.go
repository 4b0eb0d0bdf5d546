package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DestroySerialRequest writes off one serialized unit outside a refund
type DestroySerialRequest struct {
	TenantID     uuid.UUID `json:"tenant_id" validate:"required"`
	SerialUnitID uuid.UUID `json:"serial_unit_id" validate:"required"`
	OperatorID   uuid.UUID `json:"operator_id" validate:"required"`
	Reason       string    `json:"reason" validate:"required"`
}

// DestroySerialUnit destroys a unit that is damaged or lost before it was
// sold. When the unit was counted as sellable stock, a negative adjustment
// movement keeps the derived quantity honest; a unit still in CREATED never
// reached stock and is destroyed without a movement.
func (s *Service) DestroySerialUnit(ctx context.Context, req DestroySerialRequest) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "serial_unit", "destroy")
	defer span.End()
	telemetry.SetAttributes(span,
		"tenant_id", req.TenantID.String(),
		telemetry.SpanAttrSerialUnitID, req.SerialUnitID.String(),
	)

	if req.TenantID == uuid.Nil || req.SerialUnitID == uuid.Nil {
		return failure("tenant and serial unit are required"), nil
	}
	if req.Reason == "" {
		return failure("a destroy reason is required"), nil
	}

	result := &Result{Success: true}
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		unit, err := repos.SerialUnitRepo().FindByIDForTenant(ctx, req.TenantID, req.SerialUnitID)
		if err != nil {
			return err
		}

		from := unit.Status
		if from == lifecycle.SerialStatusSold {
			// A sold unit belongs to the customer; damage on return goes
			// through the refund flow instead.
			return shared.NewDomainError("INVALID_STATE",
				"Serial unit "+unit.SerialNumber+" is sold; destroy it through a refund")
		}
		wasInStock := from == lifecycle.SerialStatusAssigned
		if err := unit.Destroy(req.Reason); err != nil {
			return err
		}
		if err := repos.SerialUnitRepo().UpdateStatusCAS(ctx, unit, from); err != nil {
			return err
		}

		if wasInStock {
			product, err := s.catalog.GetProduct(ctx, req.TenantID, unit.ProductID)
			if err != nil {
				return err
			}
			adjustmentID := uuid.New()
			movement, err := ledger.NewMovement(
				req.TenantID,
				unit.ProductID,
				ledger.MovementKindAdjustment,
				decimal.NewFromInt(-1),
				product.CostPrice,
				adjustmentID,
				adjustmentID,
			)
			if err != nil {
				return err
			}
			movement.WithSerialUnitID(unit.ID).
				WithOperatorID(req.OperatorID).
				WithReason(req.Reason)
			if unit.BatchID != nil {
				movement.WithBatchID(*unit.BatchID)
			}
			if err := repos.MovementRepo().Create(ctx, movement); err != nil {
				return err
			}
			result.MovementIDs = append(result.MovementIDs, movement.ID)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return classify(err)
	}

	s.logger.Info("serial unit destroyed",
		zap.String("serial_unit_id", req.SerialUnitID.String()),
		zap.String("reason", req.Reason))
	return result, nil
}

package orchestrator

import (
	"context"

	"github.com/retailcore/backend/internal/domain/shared/valueobject"
)

// TenderMethod identifies how a tender is settled
type TenderMethod string

const (
	// TenderMethodCash is settled at the drawer, no authorization round-trip
	TenderMethodCash TenderMethod = "CASH"
	// TenderMethodCard is authorized through the payment gateway
	TenderMethodCard TenderMethod = "CARD"
	// TenderMethodAccount is charged to a customer account
	TenderMethodAccount TenderMethod = "ACCOUNT"
)

// IsValid returns true if the tender method is valid
func (m TenderMethod) IsValid() bool {
	switch m {
	case TenderMethodCash, TenderMethodCard, TenderMethodAccount:
		return true
	}
	return false
}

// TenderResult is the gateway's answer to an authorization request
type TenderResult struct {
	Authorized bool
	Reference  string
	Message    string
}

// PaymentGateway is the external payment collaborator. A failed authorization
// aborts the checkout before any movement is appended.
type PaymentGateway interface {
	// Authorize requests authorization for an amount
	Authorize(ctx context.Context, amount valueobject.Money, method TenderMethod) (*TenderResult, error)
}

// ApprovalAction names the operation an elevated approval gates
type ApprovalAction string

const (
	// ApprovalActionCancel gates out-of-policy cancellations
	ApprovalActionCancel ApprovalAction = "CANCEL"
	// ApprovalActionRefund gates out-of-policy refunds
	ApprovalActionRefund ApprovalAction = "REFUND"
)

// ApprovalService is the external policy collaborator gating cancel/refund
// operations that fall outside the configured window or amount thresholds.
type ApprovalService interface {
	// IsElevatedApprovalValid verifies an approval token for an action
	IsElevatedApprovalValid(ctx context.Context, token string, action ApprovalAction) (bool, error)
}

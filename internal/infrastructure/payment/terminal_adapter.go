package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/domain/shared/valueobject"
)

// TerminalAdapter implements the payment gateway against an HTTP card
// terminal service. Cash and account tenders are settled locally without a
// gateway round-trip; only card tenders are authorized remotely.
type TerminalAdapter struct {
	config     *TerminalConfig
	httpClient *http.Client
}

// NewTerminalAdapter creates a new terminal gateway adapter
func NewTerminalAdapter(config *TerminalConfig) (*TerminalAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &TerminalAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.timeout(),
		},
	}, nil
}

// Authorize requests authorization for an amount
func (a *TerminalAdapter) Authorize(ctx context.Context, amount valueobject.Money, method orchestrator.TenderMethod) (*orchestrator.TenderResult, error) {
	if !method.IsValid() {
		return nil, fmt.Errorf("invalid tender method: %s", method)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("authorization amount must not be negative")
	}

	if method != orchestrator.TenderMethodCard {
		return &orchestrator.TenderResult{
			Authorized: true,
			Reference:  fmt.Sprintf("local-%s", uuid.New().String()),
			Message:    "settled locally",
		}, nil
	}

	reqBody := authorizeRequest{
		TerminalID: a.config.TerminalID,
		RequestID:  uuid.New().String(),
		Amount:     amount.Round2().Amount().StringFixed(2),
		Currency:   string(amount.Currency()),
		Method:     string(method),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/authorize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("terminal gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("terminal gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var gatewayResp authorizeResponse
	if err := json.Unmarshal(body, &gatewayResp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &orchestrator.TenderResult{
		Authorized: gatewayResp.Approved,
		Reference:  gatewayResp.Reference,
		Message:    gatewayResp.Message,
	}, nil
}

var _ orchestrator.PaymentGateway = (*TerminalAdapter)(nil)

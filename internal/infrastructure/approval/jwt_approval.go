package approval

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid approval token")
	ErrExpiredToken     = errors.New("approval token has expired")
	ErrInvalidClaims    = errors.New("invalid approval token claims")
	ErrTokenNotYetValid = errors.New("approval token is not yet valid")
	ErrTokenConsumed    = errors.New("approval token has already been used")
	ErrActionMismatch   = errors.New("approval token was issued for a different action")
)

// Claims represents the claims of an elevated approval token
type Claims struct {
	jwt.RegisteredClaims
	ApproverID string `json:"approver_id"`
	Action     string `json:"action"`
}

// JWTApprovalService issues and verifies elevated approval tokens. A token is
// bound to a single action kind and is single-use: verification consumes it
// through the registry so a captured token cannot authorize a second
// operation.
type JWTApprovalService struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	consumed ConsumedTokenRegistry
}

// NewJWTApprovalService creates a new approval token service
func NewJWTApprovalService(cfg config.ApprovalConfig, consumed ConsumedTokenRegistry) *JWTApprovalService {
	return &JWTApprovalService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
		consumed: consumed,
	}
}

// IssueToken issues a short-lived approval token for one action
func (s *JWTApprovalService) IssueToken(approverID uuid.UUID, action orchestrator.ApprovalAction) (string, error) {
	now := time.Now()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   approverID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ApproverID: approverID.String(),
		Action:     string(action),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// IsElevatedApprovalValid verifies an approval token for an action. A valid
// token is consumed as a side effect.
func (s *JWTApprovalService) IsElevatedApprovalValid(ctx context.Context, tokenString string, action orchestrator.ApprovalAction) (bool, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenNotYetValid) || errors.Is(err, ErrInvalidClaims) {
			return false, nil
		}
		return false, err
	}

	if claims.Action != string(action) {
		return false, nil
	}

	used, err := s.consumed.IsConsumed(ctx, claims.ID)
	if err != nil {
		return false, err
	}
	if used {
		return false, nil
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return false, nil
	}
	if err := s.consumed.MarkConsumed(ctx, claims.ID, remaining); err != nil {
		return false, err
	}

	return true, nil
}

// parseToken validates signature and registered claims
func (s *JWTApprovalService) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.ID == "" {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

var _ orchestrator.ApprovalService = (*JWTApprovalService)(nil)

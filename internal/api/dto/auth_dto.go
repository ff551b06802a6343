package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// TokenRequest payload for POST /auth/token.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenResponse returned on a successful credential exchange.
type TokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Scopes      []domain.Scope `json:"scopes"`
}

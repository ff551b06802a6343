package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util/errorutil"
)

// clientScopes is granted to every authenticated API client.
var clientScopes = []domain.Scope{domain.ScopeTriageWrite, domain.ScopeTriageRead}

// AuthService issues tokens for the configured API client.
type AuthService struct {
	enabled    bool
	clientID   string
	secretHash string
	tokenMgr   *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config) *AuthService {
	return &AuthService{
		enabled:    cfg.Auth.Enabled,
		clientID:   cfg.Auth.ClientID,
		secretHash: cfg.Auth.ClientSecretHash,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
	}
}

// IssueToken exchanges client credentials for a signed access token.
func (s *AuthService) IssueToken(_ context.Context, clientID, clientSecret string) (domain.Token, string, error) {
	if !s.enabled {
		return domain.Token{}, "", apperrors.NewServiceUnavailable("authentication is disabled")
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || clientSecret == "" {
		return domain.Token{}, "", apperrors.NewValidationError("client_id and client_secret are required", nil)
	}
	if err := auth.VerifyClient(s.clientID, s.secretHash, clientID, clientSecret); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return domain.Token{}, "", apperrors.NewUnauthorized(err.Error())
		}
		return domain.Token{}, "", err
	}
	meta, token, err := s.tokenMgr.GenerateToken(clientID, domain.SubjectTypeClient, clientScopes)
	if err != nil {
		return domain.Token{}, "", apperrors.NewInternalError(err)
	}
	return meta, token, nil
}

// Enabled reports whether token checks are enforced.
func (s *AuthService) Enabled() bool {
	return s.enabled
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

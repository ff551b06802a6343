package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util/errorutil"
)

func newAuthService(t *testing.T, enabled bool) *AuthService {
	t.Helper()
	hash, err := auth.HashSecret("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService(config.Config{Auth: config.AuthConfig{
		Enabled:               enabled,
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		ClientID:              "ops-console",
		ClientSecretHash:      hash,
	}})
}

func TestIssueTokenGrantsTriageScopes(t *testing.T) {
	svc := newAuthService(t, true)

	meta, token, err := svc.IssueToken(context.Background(), "ops-console", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, domain.SubjectTypeClient, meta.Subject)

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-console", claims.SubjectID)
	assert.True(t, claims.HasScope(domain.ScopeTriageWrite))
	assert.True(t, claims.HasScope(domain.ScopeTriageRead))
}

func TestIssueTokenRejectsBadCredentials(t *testing.T) {
	svc := newAuthService(t, true)

	_, _, err := svc.IssueToken(context.Background(), "ops-console", "wrong")
	assert.Equal(t, apperrors.CodeUnauthorized, apperrors.ToDomainError(err).Code)

	_, _, err = svc.IssueToken(context.Background(), "someone-else", "s3cret")
	assert.Equal(t, apperrors.CodeUnauthorized, apperrors.ToDomainError(err).Code)

	_, _, err = svc.IssueToken(context.Background(), "", "")
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)
}

func TestIssueTokenWhenDisabled(t *testing.T) {
	svc := newAuthService(t, false)

	_, _, err := svc.IssueToken(context.Background(), "ops-console", "s3cret")
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.ToDomainError(err).Code)
	assert.False(t, svc.Enabled())
}

package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestLoginIssuesOrgScopedToken(t *testing.T) {
	store := repotest.NewStore()
	org := store.AddOrganization("Acme", "acme")
	hash, err := auth.HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	user := store.AddUser(org.ID, "agent@acme.test", domain.UserRoleAgent, hash)

	svc := service.NewAuthService(config.AuthConfig{JWTSecret: "jwt-secret", AccessTokenTTLMinutes: 5}, store.Users())

	got, token, exp, err := svc.Login(context.Background(), " Agent@Acme.test ", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEmpty(t, token)
	require.False(t, exp.IsZero())

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, org.ID, claims.OrgID)
	require.Equal(t, domain.UserRoleAgent, claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := repotest.NewStore()
	org := store.AddOrganization("Acme", "acme")
	hash, err := auth.HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	store.AddUser(org.ID, "agent@acme.test", domain.UserRoleAgent, hash)
	svc := service.NewAuthService(config.AuthConfig{JWTSecret: "jwt-secret"}, store.Users())
	ctx := context.Background()

	_, _, _, err = svc.Login(ctx, "agent@acme.test", "wrong")
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, _, _, err = svc.Login(ctx, "nobody@acme.test", "correct horse")
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, _, _, err = svc.Login(ctx, "", "")
	requireCode(t, err, apperrors.CodeInvalidInput)

	store.FailWith(errors.New("connection reset"))
	_, _, _, err = svc.Login(ctx, "agent@acme.test", "correct horse")
	requireCode(t, err, apperrors.CodeStoreUnavailable)
}

func TestGetOrganization(t *testing.T) {
	store := repotest.NewStore()
	org := store.AddOrganization("Acme", "acme")
	svc := service.NewOrganizationService(store.Organizations())
	ctx := context.Background()

	got, err := svc.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, "acme", got.Slug)

	_, err = svc.GetOrganization(ctx, "00000000-0000-0000-0000-000000000000")
	requireCode(t, err, apperrors.CodeNotFound)
	_, err = svc.GetOrganization(ctx, "acme")
	requireCode(t, err, apperrors.CodeInvalidInput)
}

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestCapabilities(t *testing.T) {
	require.True(t, auth.Can(domain.UserRoleCustomer, auth.CapTicketRead))
	require.True(t, auth.Can(domain.UserRoleCustomer, auth.CapCommentWrite))
	require.False(t, auth.Can(domain.UserRoleCustomer, auth.CapTicketUpdate))
	require.True(t, auth.Can(domain.UserRoleAgent, auth.CapTicketUpdate))
	require.True(t, auth.Can(domain.UserRoleAdmin, auth.CapTicketUpdate))
	require.False(t, auth.Can(domain.UserRole("root"), auth.CapTicketRead))
}

func TestTokenRoundTrip(t *testing.T) {
	tm := auth.NewTokenManager("secret", 10)
	user := &domain.User{ID: "u-1", OrgID: "o-1", Role: domain.UserRoleAdmin}

	token, exp, err := tm.GenerateToken(user)
	require.NoError(t, err)
	require.False(t, exp.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.Subject)
	require.Equal(t, "o-1", claims.OrgID)
	require.Equal(t, domain.UserRoleAdmin, claims.Role)

	_, err = auth.NewTokenManager("other", 10).ParseToken(token)
	require.Error(t, err)
	_, err = tm.ParseToken("garbage")
	require.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("pw", 4)
	require.NoError(t, err)
	require.NoError(t, auth.ComparePassword(hash, "pw"))
	require.Error(t, auth.ComparePassword(hash, "nope"))
}

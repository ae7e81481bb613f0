package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/notifyd/internal/pkg/rbac"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	s := NewSigner("secret", "notifyd", "web", time.Hour)
	tok, err := s.IssueAccessToken(Identity{UserID: "u1", Roles: []string{rbac.RoleAdmin}})
	require.NoError(t, err)

	id, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.True(t, id.IsAdmin())
	assert.True(t, id.Can(rbac.PermSendBulk))
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()

	s := NewSigner("secret", "", "", time.Hour)
	tok, err := s.IssueAccessToken(Identity{UserID: "u1"})
	require.NoError(t, err)

	other := NewSigner("other", "", "", time.Hour)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(tok, ".")
	_, err = s.Verify(parts[0] + "." + parts[1] + ".AAAA")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	s := NewSigner("secret", "", "", time.Minute)
	s.now = func() time.Time { return now }
	tok, err := s.IssueAccessToken(Identity{UserID: "u1"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyAudience(t *testing.T) {
	t.Parallel()

	tok, err := NewSigner("secret", "", "mobile", time.Hour).IssueAccessToken(Identity{UserID: "u1"})
	require.NoError(t, err)
	_, err = NewSigner("secret", "", "web", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u2"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u2", id.UserID)
	assert.False(t, id.IsAdmin())
}

package auth_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backend/internal/infrastructure/auth"
)

func TestInMemoryTokenBlacklist_RevokeSingleToken(t *testing.T) {
	blacklist := auth.NewInMemoryTokenBlacklist()
	ctx := context.Background()

	require.NoError(t, blacklist.AddToBlacklist(ctx, "session-jti-1", time.Hour))

	revoked, err := blacklist.IsBlacklisted(ctx, "session-jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = blacklist.IsBlacklisted(ctx, "session-jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestInMemoryTokenBlacklist_ExpiredEntryDropped(t *testing.T) {
	blacklist := auth.NewInMemoryTokenBlacklist()
	ctx := context.Background()

	require.NoError(t, blacklist.AddToBlacklist(ctx, "short-lived", time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	revoked, err := blacklist.IsBlacklisted(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestInMemoryTokenBlacklist_ForceLogoutAllSessions(t *testing.T) {
	blacklist := auth.NewInMemoryTokenBlacklist()
	ctx := context.Background()

	issuedBefore := time.Now().Add(-time.Hour)

	invalidated, err := blacklist.IsUserTokenInvalidated(ctx, "agent-1", issuedBefore)
	require.NoError(t, err)
	assert.False(t, invalidated)

	require.NoError(t, blacklist.AddUserTokensToBlacklist(ctx, "agent-1", time.Hour))

	// Sessions opened before the logout are dead
	invalidated, err = blacklist.IsUserTokenInvalidated(ctx, "agent-1", issuedBefore)
	require.NoError(t, err)
	assert.True(t, invalidated)

	// A token issued after the logout stays valid
	invalidated, err = blacklist.IsUserTokenInvalidated(ctx, "agent-1", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.False(t, invalidated)

	// Other agents are unaffected
	invalidated, err = blacklist.IsUserTokenInvalidated(ctx, "agent-2", issuedBefore)
	require.NoError(t, err)
	assert.False(t, invalidated)
}

func TestInMemoryTokenBlacklist_IndependentEntries(t *testing.T) {
	blacklist := auth.NewInMemoryTokenBlacklist()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, blacklist.AddToBlacklist(ctx, fmt.Sprintf("jti-%d", i), time.Hour))
	}

	for i := 0; i < 5; i++ {
		revoked, err := blacklist.IsBlacklisted(ctx, fmt.Sprintf("jti-%d", i))
		require.NoError(t, err)
		assert.True(t, revoked)
	}

	revoked, err := blacklist.IsBlacklisted(ctx, "never-revoked")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenBlacklistImplementations(t *testing.T) {
	var _ auth.TokenBlacklist = (*auth.InMemoryTokenBlacklist)(nil)
	var _ auth.TokenBlacklist = (*auth.RedisTokenBlacklist)(nil)
}

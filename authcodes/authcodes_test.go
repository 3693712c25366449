package authcodes_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-agent-auth/authcodes"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/store/memstore"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationCodes(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	defer mem.Close()

	now := time.Now()
	repo := authcodes.NewRepo(mem, func() time.Time { return now })

	code := &authcodes.AuthorizationCode{
		ClientID:    "client-1",
		RedirectURI: "https://agent.example.com/cb",
		UserID:      "user-1",
		SessionID:   "session-1",
	}
	require.NoError(t, repo.Issue(ctx, code))
	require.Len(t, code.Code, 64)
	require.True(t, now.Add(store.AuthCodeTTL).Equal(code.ExpiresAt))

	ttl, ok := mem.TTL(store.AuthCodeKey(code.Code))
	require.True(t, ok)
	require.InDelta(t, store.AuthCodeTTL, ttl, float64(time.Second))

	t.Run("lookup does not consume", func(t *testing.T) {
		got, err := repo.Lookup(ctx, code.Code)
		require.NoError(t, err)
		require.Equal(t, "session-1", got.SessionID)
		_, err = repo.Lookup(ctx, code.Code)
		require.NoError(t, err)
	})

	t.Run("consume makes it unusable", func(t *testing.T) {
		require.NoError(t, repo.Consume(ctx, code.Code))
		_, err := repo.Lookup(ctx, code.Code)
		require.ErrorIs(t, err, authcodes.ErrNotFound)
	})

	t.Run("expired codes are deleted on sight", func(t *testing.T) {
		stale := &authcodes.AuthorizationCode{ClientID: "client-1"}
		require.NoError(t, repo.Issue(ctx, stale))

		later := authcodes.NewRepo(mem, func() time.Time { return now.Add(store.AuthCodeTTL) })
		_, err := later.Lookup(ctx, stale.Code)
		require.ErrorIs(t, err, authcodes.ErrExpired)
		require.Empty(t, mem.Keys("authcode:"))
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := repo.Lookup(ctx, "")
		require.ErrorIs(t, err, authcodes.ErrNotFound)
	})
}

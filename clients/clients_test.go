package clients_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/store/memstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupRepo(t *testing.T) (*clients.Repo, *memstore.MemStore) {
	t.Helper()
	mem := memstore.New()
	t.Cleanup(mem.Close)
	return clients.NewRepo(mem, clients.WithBcryptCost(bcrypt.MinCost)), mem
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("confidential client", func(t *testing.T) {
		repo, mem := setupRepo(t)
		client, secret, err := repo.Register(ctx, clients.Registration{
			RedirectURIs: []string{"https://agent.example.com/callback"},
			Name:         "assistant",
		})
		require.NoError(t, err)
		require.Len(t, secret, 64)
		require.Equal(t, clients.AuthMethodSecretPost, client.TokenEndpointAuthMethod)
		require.NotContains(t, client.SecretHash, secret)

		ttl, ok := mem.TTL(store.ClientKey(client.ID))
		require.True(t, ok)
		require.Zero(t, ttl, "registrations never expire")

		got, err := repo.Authenticate(ctx, client.ID, secret)
		require.NoError(t, err)
		require.True(t, got.HasRedirectURI("https://agent.example.com/callback"))

		_, err = repo.Authenticate(ctx, client.ID, "wrong")
		require.ErrorIs(t, err, clients.ErrInvalidSecret)
		_, err = repo.Authenticate(ctx, client.ID, "")
		require.ErrorIs(t, err, clients.ErrInvalidSecret)
	})

	t.Run("public client", func(t *testing.T) {
		repo, _ := setupRepo(t)
		client, secret, err := repo.Register(ctx, clients.Registration{
			RedirectURIs:            []string{"http://127.0.0.1:3000/cb"},
			TokenEndpointAuthMethod: clients.AuthMethodNone,
		})
		require.NoError(t, err)
		require.Empty(t, secret)
		require.True(t, client.IsPublic())

		_, err = repo.Authenticate(ctx, client.ID, "")
		require.NoError(t, err)
		_, err = repo.Authenticate(ctx, client.ID, "anything")
		require.ErrorIs(t, err, clients.ErrInvalidSecret)
	})

	for name, tc := range map[string]struct {
		reg clients.Registration
		err error
	}{
		"no redirect uris": {clients.Registration{}, clients.ErrNoRedirectURIs},
		"relative uri":     {clients.Registration{RedirectURIs: []string{"/callback"}}, clients.ErrInvalidRedirectURI},
		"fragment":         {clients.Registration{RedirectURIs: []string{"https://a.example/cb#x"}}, clients.ErrInvalidRedirectURI},
		"bad auth method": {clients.Registration{
			RedirectURIs:            []string{"https://a.example/cb"},
			TokenEndpointAuthMethod: "private_key_jwt",
		}, clients.ErrUnsupportedAuthType},
	} {
		t.Run(name, func(t *testing.T) {
			repo, _ := setupRepo(t)
			_, _, err := repo.Register(ctx, tc.reg)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGetUnknownClient(t *testing.T) {
	repo, _ := setupRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, clients.ErrNotFound)
	_, err = repo.Authenticate(context.Background(), "", "")
	require.ErrorIs(t, err, clients.ErrNotFound)
}

package bearer_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-agent-auth/bearer"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/store/memstore"
	"github.com/jrsteele09/go-agent-auth/token"
	"github.com/jrsteele09/go-agent-auth/token/keys"
	"github.com/jrsteele09/go-agent-auth/upstream"
	"github.com/jrsteele09/go-agent-auth/upstream/fakeupstream"
	"github.com/jrsteele09/go-agent-auth/vault"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "https://auth.example.com"
	testClient = "client-1"
)

type testFixture struct {
	mem      *memstore.MemStore
	vault    *vault.Vault
	signer   keys.Signer
	now      time.Time
	manager  *sessions.Manager
	issuer   *token.Issuer
	resolver *bearer.Resolver
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{now: time.Now().Truncate(time.Second)}
	nowTime := func() time.Time { return f.now }

	f.mem = memstore.New()
	t.Cleanup(f.mem.Close)
	var err error
	f.vault, err = vault.New(testKey)
	require.NoError(t, err)
	f.signer, err = keys.NewHMACSigner(testSecret)
	require.NoError(t, err)

	f.manager, err = sessions.NewManager(f.mem, f.vault, fakeupstream.NewFakeAuthenticator(), sessions.WithNowTime(nowTime))
	require.NoError(t, err)
	f.issuer = token.NewIssuer(f.signer, testIssuer, token.WithNowTime(nowTime))
	f.resolver = bearer.NewResolver(f.issuer, f.manager)
	return f
}

// issuedSession creates a session with rotated tokens and a signed credential.
func (f *testFixture) issuedSession(t *testing.T) (*sessions.UserSession, string) {
	t.Helper()
	ctx := context.Background()
	sess, err := f.manager.Create(ctx, sessions.CreateParams{
		Email:    "jane@example.com",
		Password: "pw",
		ClientID: testClient,
		Token:    upstream.Token{Value: "up", ExpiresAt: f.now.Add(time.Hour)},
	})
	require.NoError(t, err)
	rot, err := f.manager.RotateTokens(ctx, sess, f.issuer.TTL())
	require.NoError(t, err)
	f.manager.CommitRotation(ctx, rot)
	raw, err := f.issuer.Issue(sess)
	require.NoError(t, err)
	return sess, raw
}

// credential signs claims that carry sealed credentials for a session the
// store has never seen.
func (f *testFixture) credential(t *testing.T, mutate func(*token.Claims)) string {
	t.Helper()
	email, err := f.vault.Seal("jane@example.com")
	require.NoError(t, err)
	password, err := f.vault.Seal("pw")
	require.NoError(t, err)

	claims := &token.Claims{
		SessionID:         "missing-session",
		ClientID:          testClient,
		SessionCreatedAt:  f.now.Add(-time.Hour).Unix(),
		EncryptedEmail:    email.Ciphertext,
		EmailIV:           email.IV,
		EncryptedPassword: password.Ciphertext,
		PasswordIV:        password.IV,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   f.vault.Fingerprint("jane@example.com"),
			ID:        "opaque-access",
			IssuedAt:  jwt.NewNumericDate(f.now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(f.now.Add(time.Hour)),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	raw, err := f.signer.Sign(claims)
	require.NoError(t, err)
	return raw
}

func TestResolveStoredSession(t *testing.T) {
	t.Run("touches the session", func(t *testing.T) {
		f := setupTestFixture(t)
		sess, raw := f.issuedSession(t)

		f.now = f.now.Add(time.Minute)
		resolved, err := f.resolver.Resolve(context.Background(), raw)
		require.NoError(t, err)
		require.Equal(t, sess.ID, resolved.ID)

		stored, err := f.manager.Peek(context.Background(), sess.ID)
		require.NoError(t, err)
		require.True(t, stored.LastUsedAt.Equal(f.now))
	})

	t.Run("client mismatch", func(t *testing.T) {
		f := setupTestFixture(t)
		sess, raw := f.issuedSession(t)
		sess.ClientID = "client-2"
		require.NoError(t, f.manager.Save(context.Background(), sess))

		_, err := f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
	})

	t.Run("unbound session", func(t *testing.T) {
		f := setupTestFixture(t)
		sess, raw := f.issuedSession(t)
		sess.ClientID = ""
		require.NoError(t, f.manager.Save(context.Background(), sess))

		_, err := f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
	})

	t.Run("expired credential", func(t *testing.T) {
		f := setupTestFixture(t)
		_, raw := f.issuedSession(t)
		f.now = f.now.Add(2 * time.Hour)

		_, err := f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
	})

	t.Run("foreign signature", func(t *testing.T) {
		f := setupTestFixture(t)
		other, err := keys.NewHMACSigner("ffffffffffffffffffffffffffffffff")
		require.NoError(t, err)
		sess, _ := f.issuedSession(t)
		raw, err := token.NewIssuer(other, testIssuer).Issue(sess)
		require.NoError(t, err)

		_, err = f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
	})
}

func TestResolveReconstructsMissingSession(t *testing.T) {
	t.Run("rebuilt and written back", func(t *testing.T) {
		f := setupTestFixture(t)
		resolved, err := f.resolver.Resolve(context.Background(), f.credential(t, nil))
		require.NoError(t, err)
		require.Equal(t, "missing-session", resolved.ID)
		require.Equal(t, testClient, resolved.ClientID)
		require.Equal(t, "opaque-access", resolved.AccessToken)

		f.manager.WaitDetached()
		stored, err := f.manager.Peek(context.Background(), "missing-session")
		require.NoError(t, err)
		require.Equal(t, testClient, stored.ClientID)

		email, err := f.vault.Open(stored.SealedEmail())
		require.NoError(t, err)
		require.Equal(t, "jane@example.com", email)

		owner, err := f.manager.FindByAccessToken(context.Background(), "opaque-access")
		require.NoError(t, err)
		require.Equal(t, "missing-session", owner.ID)
		_, ok := f.mem.TTL(store.UserSessionKey(stored.UserID))
		require.True(t, ok)
	})

	t.Run("session expiry follows sca not iat", func(t *testing.T) {
		f := setupTestFixture(t)
		created := f.now.Add(-20 * 24 * time.Hour)
		raw := f.credential(t, func(c *token.Claims) {
			c.SessionCreatedAt = created.Unix()
			c.IssuedAt = jwt.NewNumericDate(f.now.Add(-time.Minute))
		})

		resolved, err := f.resolver.Resolve(context.Background(), raw)
		require.NoError(t, err)
		require.True(t, resolved.SessionExpiresAt.Equal(created.Add(store.SessionTTL)))
		f.manager.WaitDetached()
	})

	t.Run("iat fallback without sca", func(t *testing.T) {
		f := setupTestFixture(t)
		issued := f.now.Add(-time.Minute)
		raw := f.credential(t, func(c *token.Claims) {
			c.SessionCreatedAt = 0
			c.IssuedAt = jwt.NewNumericDate(issued)
		})

		resolved, err := f.resolver.Resolve(context.Background(), raw)
		require.NoError(t, err)
		require.True(t, resolved.CreatedAt.Equal(issued))
		f.manager.WaitDetached()
	})

	t.Run("credential without cid is rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.credential(t, func(c *token.Claims) { c.ClientID = "" })

		_, err := f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
		f.manager.WaitDetached()
		require.Empty(t, f.mem.Keys("session:"))
	})

	t.Run("session older than its lifetime", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.credential(t, func(c *token.Claims) {
			c.SessionCreatedAt = f.now.Add(-31 * 24 * time.Hour).Unix()
		})

		_, err := f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
	})

	t.Run("no sealed credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.credential(t, func(c *token.Claims) {
			c.EncryptedEmail, c.EncryptedPassword, c.EmailIV, c.PasswordIV = "", "", "", ""
		})

		_, err := f.resolver.Resolve(context.Background(), raw)
		require.ErrorIs(t, err, bearer.ErrUnauthenticated)
	})
}

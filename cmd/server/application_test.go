package main

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-agent-auth/internal/config"
	apperrors "github.com/jrsteele09/go-agent-auth/internal/errors"
	"github.com/jrsteele09/go-agent-auth/token/keys"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewApplication(t *testing.T) {
	t.Run("requires an encryption key", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", "")
		_, err := newApplication(context.Background(), config.New())
		require.ErrorIs(t, err, apperrors.ErrMissingEncryptionKey)
	})

	t.Run("requires a signing key outside DEV", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", testKey)
		t.Setenv("UPSTREAM_AUTH_URL", "http://upstream.invalid/login")
		t.Setenv("ENV", "PROD")
		t.Setenv("SIGNING_SECRET", "")
		t.Setenv("SIGNING_KEY_PEM", "")
		_, err := newApplication(context.Background(), config.New())
		require.ErrorIs(t, err, apperrors.ErrMissingSigningKey)
	})

	t.Run("unknown store backend", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", testKey)
		t.Setenv("UPSTREAM_AUTH_URL", "http://upstream.invalid/login")
		t.Setenv("SIGNING_SECRET", "0123456789abcdef0123456789abcdef")
		t.Setenv("STORE_BACKEND", "etcd")
		_, err := newApplication(context.Background(), config.New())
		require.ErrorIs(t, err, apperrors.ErrUnknownStoreBackend)
	})

	t.Run("memory backend", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", testKey)
		t.Setenv("UPSTREAM_AUTH_URL", "http://upstream.invalid/login")
		t.Setenv("SIGNING_SECRET", "0123456789abcdef0123456789abcdef")
		t.Setenv("STORE_BACKEND", "memory")
		app, err := newApplication(context.Background(), config.New())
		require.NoError(t, err)
		require.NotNil(t, app.handler)
		app.close()
	})
}

func TestBuildSignerFromPEM(t *testing.T) {
	keyPair, err := keys.GenerateRSAKeyPair("", 2048)
	require.NoError(t, err)
	pemData, err := keyPair.ExportPrivateKeyPEM()
	require.NoError(t, err)

	t.Setenv("SIGNING_KEY_PEM", pemData)
	t.Setenv("SIGNING_KEY_ID", "key-1")
	signer, err := buildSigner(config.New())
	require.NoError(t, err)
	require.Equal(t, "RS256", signer.GetSigningMethod().Alg())
}

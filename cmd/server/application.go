package main

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-agent-auth/auth"
	"github.com/jrsteele09/go-agent-auth/authcodes"
	"github.com/jrsteele09/go-agent-auth/bearer"
	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/internal/config"
	apperrors "github.com/jrsteele09/go-agent-auth/internal/errors"
	"github.com/jrsteele09/go-agent-auth/internal/metrics"
	"github.com/jrsteele09/go-agent-auth/paymentpages"
	"github.com/jrsteele09/go-agent-auth/server"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/store/memstore"
	"github.com/jrsteele09/go-agent-auth/store/mongostore"
	"github.com/jrsteele09/go-agent-auth/store/redisstore"
	"github.com/jrsteele09/go-agent-auth/token"
	"github.com/jrsteele09/go-agent-auth/token/keys"
	"github.com/jrsteele09/go-agent-auth/upstream"
	"github.com/jrsteele09/go-agent-auth/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type application struct {
	handler  http.Handler
	sessions *sessions.Manager
	close    func()
}

func newApplication(ctx context.Context, c config.Config) (*application, error) {
	if c.GetEncryptionKey() == "" {
		return nil, apperrors.ErrMissingEncryptionKey
	}
	v, err := vault.New(c.GetEncryptionKey())
	if err != nil {
		return nil, apperrors.Wrapf(err, "[newApplication] vault")
	}
	if c.GetUpstreamAuthURL() == "" {
		return nil, apperrors.ErrMissingUpstreamURL
	}
	authenticator := upstream.NewHTTPAuthenticator(c.GetUpstreamAuthURL(), c.GetUpstreamTimeout())

	signer, err := buildSigner(c)
	if err != nil {
		return nil, err
	}
	issuer := token.NewIssuer(signer, c.GetBaseURL(), token.WithTTL(c.GetDefaultAccessTokenExpiry()))

	recordStore, closeStore, err := buildStore(ctx, c)
	if err != nil {
		return nil, err
	}

	manager, err := sessions.NewManager(recordStore, v, authenticator)
	if err != nil {
		closeStore()
		return nil, apperrors.Wrapf(err, "[newApplication] sessions")
	}

	authService, err := auth.NewAuthorizationService(auth.Repos{
		Clients: clients.NewRepo(recordStore, clients.WithBcryptCost(c.GetClientSecretCost())),
		Codes:   authcodes.NewRepo(recordStore, nil),
		Session: manager,
	}, issuer, authenticator)
	if err != nil {
		closeStore()
		return nil, apperrors.Wrapf(err, "[newApplication] auth")
	}

	metrics.Register(prometheus.DefaultRegisterer)

	srv, err := server.New(c, server.Dependencies{
		Auth:         authService,
		Resolver:     bearer.NewResolver(issuer, manager),
		PaymentPages: paymentpages.NewRepo(recordStore, nil),
	})
	if err != nil {
		closeStore()
		return nil, apperrors.Wrapf(err, "[newApplication] server")
	}

	return &application{handler: srv, sessions: manager, close: closeStore}, nil
}

// buildSigner prefers an RSA key, so agents can verify credentials from the
// published JWKS, and falls back to a shared HMAC secret.
func buildSigner(c config.Config) (keys.Signer, error) {
	if pemData := c.GetSigningKeyPEM(); pemData != "" {
		keyPair, err := keys.LoadKeyPairFromPEM(c.GetSigningKeyID(), pemData)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[buildSigner] signing key")
		}
		log.Info().Str("kid", keyPair.KeyID).Msg("signing credentials with RS256")
		return keys.NewKeyPairSigner(keyPair), nil
	}
	if secret := c.GetSigningSecret(); secret != "" {
		signer, err := keys.NewHMACSigner(secret)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[buildSigner] signing secret")
		}
		return signer, nil
	}
	if c.GetEnv() == "DEV" {
		keyPair, err := keys.GenerateRSAKeyPair("", 2048)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[buildSigner] generate key")
		}
		log.Warn().Str("kid", keyPair.KeyID).Msg("no signing key configured, using an ephemeral key")
		return keys.NewKeyPairSigner(keyPair), nil
	}
	return nil, apperrors.ErrMissingSigningKey
}

func buildStore(ctx context.Context, c config.Config) (store.Store, func(), error) {
	switch backend := c.GetStoreBackend(); backend {
	case config.StoreBackendMemory:
		log.Warn().Msg("using the in-memory store, sessions are lost on restart")
		mem := memstore.New()
		return mem, mem.Close, nil

	case config.StoreBackendRedis:
		rs, err := redisstore.Dial(ctx, c.GetRedisURL(), c.GetRedisKeyPrefix())
		if err != nil {
			return nil, nil, apperrors.Wrapf(err, "[buildStore] redis")
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis client")
			}
		}, nil

	case config.StoreBackendMongo:
		ms, err := mongostore.Connect(ctx, c.GetMongoURI(), c.GetMongoDatabase(), c.GetMongoCollection())
		if err != nil {
			return nil, nil, apperrors.Wrapf(err, "[buildStore] mongo")
		}
		return ms, func() {
			if err := ms.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to disconnect from mongo")
			}
		}, nil

	default:
		return nil, nil, apperrors.Wrapf(apperrors.ErrUnknownStoreBackend, "[buildStore] %q", backend)
	}
}

package bearer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-agent-auth/internal/metrics"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/token"
	"github.com/rs/zerolog/log"
)

// ErrUnauthenticated means the credential does not resolve to a usable
// session and the caller must start the OAuth flow again.
var ErrUnauthenticated = errors.New("bearer credential does not resolve to a session")

// Resolver turns inbound bearer credentials into sessions.
type Resolver struct {
	issuer   *token.Issuer
	sessions *sessions.Manager
}

func NewResolver(issuer *token.Issuer, manager *sessions.Manager) *Resolver {
	return &Resolver{issuer: issuer, sessions: manager}
}

// Resolve verifies the credential and returns its session, recording the
// access. When the session record is missing but the credential carries the
// sealed credentials, the session is rebuilt from the claims and written back
// in the background.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*sessions.UserSession, error) {
	claims, err := r.issuer.Verify(raw)
	if err != nil {
		log.Debug().Err(err).Msg("[Resolver.Resolve] rejected credential")
		return nil, ErrUnauthenticated
	}

	sess, err := r.sessions.Get(ctx, claims.SessionID)
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		return r.reconstruct(ctx, claims)
	case err != nil:
		return nil, fmt.Errorf("[Resolver.Resolve] %w", err)
	}

	if sess.ClientID == "" || sess.ClientID != claims.ClientID {
		log.Warn().Str("sessionId", sess.ID).Str("cid", claims.ClientID).Msg("credential client does not match session")
		return nil, ErrUnauthenticated
	}
	if sess.Expired(r.sessions.Now()) {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

func (r *Resolver) reconstruct(ctx context.Context, claims *token.Claims) (*sessions.UserSession, error) {
	if !claims.HasCredentials() {
		return nil, ErrUnauthenticated
	}
	// Credentials minted before client binding are never revived.
	if claims.ClientID == "" {
		return nil, ErrUnauthenticated
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrUnauthenticated
	}
	createdAt, ok := claims.SessionCreated()
	if !ok {
		return nil, ErrUnauthenticated
	}

	now := r.sessions.Now()
	sess := &sessions.UserSession{
		ID:                claims.SessionID,
		UserID:            claims.Subject,
		EncryptedEmail:    claims.EncryptedEmail,
		EmailIV:           claims.EmailIV,
		EncryptedPassword: claims.EncryptedPassword,
		PasswordIV:        claims.PasswordIV,
		AccessToken:       claims.ID,
		AccessTokenExpiry: claims.ExpiresAt.Time,
		ClientID:          claims.ClientID,
		CreatedAt:         createdAt,
		LastUsedAt:        now,
		SessionExpiresAt:  createdAt.Add(store.SessionTTL),
	}
	if sess.Expired(now) {
		return nil, ErrUnauthenticated
	}

	metrics.SessionReconstructionsTotal.Inc()
	log.Info().Str("sessionId", sess.ID).Time("sessionExpiresAt", sess.SessionExpiresAt).Msg("session rebuilt from credential")
	r.sessions.PersistDetached(ctx, sess)
	return sess, nil
}


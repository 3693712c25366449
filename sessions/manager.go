package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-agent-auth/internal/metrics"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/upstream"
	"github.com/jrsteele09/go-agent-auth/vault"
	"github.com/rs/zerolog/log"
)

const (
	tokenBytes             = 32
	upstreamRefreshSkew    = 5 * time.Minute
	defaultDetachedTimeout = 5 * time.Second
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrNoCredentials means the session cannot re-authenticate upstream.
	ErrNoCredentials = errors.New("session has no usable upstream credentials")
)

// Manager owns the session record lifecycle and its token indices.
type Manager struct {
	store           store.Store
	vault           *vault.Vault
	upstream        upstream.Authenticator
	nowTime         func() time.Time
	detachedTimeout time.Duration
	detached        sync.WaitGroup
}

type ManagerOption func(*Manager)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithDetachedTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.detachedTimeout = d
	}
}

func NewManager(s store.Store, v *vault.Vault, up upstream.Authenticator, options ...ManagerOption) (*Manager, error) {
	if s == nil {
		return nil, errors.New("[sessions.NewManager] store is required")
	}
	if v == nil {
		return nil, errors.New("[sessions.NewManager] vault is required")
	}
	if up == nil {
		return nil, errors.New("[sessions.NewManager] upstream authenticator is required")
	}

	m := &Manager{
		store:           s,
		vault:           v,
		upstream:        up,
		nowTime:         time.Now,
		detachedTimeout: defaultDetachedTimeout,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Now() time.Time {
	return m.nowTime()
}

// CreateParams carries a freshly verified upstream login.
type CreateParams struct {
	Email    string
	Password string
	ClientID string
	Token    upstream.Token
}

// Create starts a new session for a successful upstream login. Every login
// gets a new session; the user's order context is carried over from the
// previous one.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*UserSession, error) {
	if params.ClientID == "" {
		return nil, errors.New("[Manager.Create] client id is required")
	}

	email, err := m.vault.Seal(params.Email)
	if err != nil {
		return nil, fmt.Errorf("[Manager.Create] seal email: %w", err)
	}
	password, err := m.vault.Seal(params.Password)
	if err != nil {
		return nil, fmt.Errorf("[Manager.Create] seal password: %w", err)
	}

	now := m.nowTime()
	upstreamExpiry := params.Token.ExpiresAt
	sess := &UserSession{
		ID:                  vault.NewID(),
		UserID:              m.vault.Fingerprint(params.Email),
		EncryptedEmail:      email.Ciphertext,
		EmailIV:             email.IV,
		EncryptedPassword:   password.Ciphertext,
		PasswordIV:          password.IV,
		UpstreamToken:       params.Token.Value,
		UpstreamTokenExpiry: &upstreamExpiry,
		ClientID:            params.ClientID,
		CreatedAt:           now,
		LastUsedAt:          now,
		SessionExpiresAt:    now.Add(store.SessionTTL),
	}

	if previous, err := m.CurrentForUser(ctx, sess.UserID); err == nil {
		sess.DeliveryAddress = previous.DeliveryAddress
	} else if !errors.Is(err, ErrNotFound) {
		log.Warn().Err(err).Str("userId", sess.UserID).Msg("unable to read previous session, order context not carried over")
	}

	if err := m.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("[Manager.Create] %w", err)
	}
	if err := store.PutString(ctx, m.store, store.UserSessionKey(sess.UserID), sess.ID, store.SessionTTL); err != nil {
		return nil, fmt.Errorf("[Manager.Create] user index: %w", err)
	}
	return sess, nil
}

// CurrentForUser returns the user's most recent session without touching it.
func (m *Manager) CurrentForUser(ctx context.Context, userID string) (*UserSession, error) {
	id, err := store.GetString(ctx, m.store, store.UserSessionKey(userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[Manager.CurrentForUser] %w", err)
	}
	return m.Peek(ctx, id)
}

// Peek loads a session without recording use.
func (m *Manager) Peek(ctx context.Context, sessionID string) (*UserSession, error) {
	var sess UserSession
	if err := store.GetJSON(ctx, m.store, store.SessionKey(sessionID), &sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[Manager.Peek] %w", err)
	}
	return &sess, nil
}

// Get loads a session and records the access in lastUsedAt.
func (m *Manager) Get(ctx context.Context, sessionID string) (*UserSession, error) {
	sess, err := m.Peek(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.LastUsedAt = m.nowTime()
	m.touch(ctx, sess)
	return sess, nil
}

// touch writes lastUsedAt onto the latest stored record. It is skipped when a
// rotation has replaced the tokens since sess was read, so the touch never
// restores pre-rotation tokens.
func (m *Manager) touch(ctx context.Context, sess *UserSession) {
	latest, err := m.Peek(ctx, sess.ID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sess.ID).Msg("failed to record session use")
		return
	}
	if latest.AccessToken != sess.AccessToken || latest.RefreshToken != sess.RefreshToken {
		log.Debug().Str("sessionId", sess.ID).Msg("session rotated during use, skipping touch")
		return
	}
	latest.LastUsedAt = sess.LastUsedAt
	if err := m.Save(ctx, latest); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.ID).Msg("failed to record session use")
	}
}

// Save writes the whole session record and restarts its store TTL.
func (m *Manager) Save(ctx context.Context, sess *UserSession) error {
	if err := store.PutJSON(ctx, m.store, store.SessionKey(sess.ID), sess, store.SessionTTL); err != nil {
		return fmt.Errorf("[Manager.Save] %w", err)
	}
	return nil
}

// FindByRefreshToken resolves a refresh token to its session. An index entry
// that points at a missing session, or at a session that has since moved on
// to another refresh token, is deleted and reported as not found.
func (m *Manager) FindByRefreshToken(ctx context.Context, refreshToken string) (*UserSession, error) {
	return m.findByIndex(ctx, store.RefreshTokenKey(refreshToken), func(s *UserSession) bool {
		return s.RefreshToken == refreshToken
	})
}

// FindByAccessToken resolves an opaque access token, with the same healing
// rules as FindByRefreshToken.
func (m *Manager) FindByAccessToken(ctx context.Context, accessToken string) (*UserSession, error) {
	return m.findByIndex(ctx, store.AccessTokenKey(accessToken), func(s *UserSession) bool {
		return s.AccessToken == accessToken
	})
}

func (m *Manager) findByIndex(ctx context.Context, indexKey string, owns func(*UserSession) bool) (*UserSession, error) {
	if indexKey == store.RefreshTokenKey("") || indexKey == store.AccessTokenKey("") {
		return nil, ErrNotFound
	}
	sessionID, err := store.GetString(ctx, m.store, indexKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[Manager.findByIndex] %w", err)
	}

	sess, err := m.Peek(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		m.healIndex(ctx, indexKey)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !owns(sess) {
		m.healIndex(ctx, indexKey)
		return nil, ErrNotFound
	}
	return sess, nil
}

func (m *Manager) healIndex(ctx context.Context, indexKey string) {
	metrics.OrphanIndicesHealedTotal.Inc()
	if err := m.store.Delete(ctx, indexKey); err != nil {
		log.Warn().Err(err).Msg("failed to delete orphaned token index")
	}
}

// EnsureUpstreamToken returns a usable upstream token for the session,
// re-authenticating with the stored credentials when the cached one expires
// within five minutes. The new token is saved on the session.
func (m *Manager) EnsureUpstreamToken(ctx context.Context, sess *UserSession) (string, error) {
	now := m.nowTime()
	if sess.UpstreamToken != "" && sess.UpstreamTokenExpiry != nil &&
		sess.UpstreamTokenExpiry.Sub(now) > upstreamRefreshSkew {
		return sess.UpstreamToken, nil
	}

	if !sess.HasCredentials() {
		return "", ErrNoCredentials
	}
	email, err := m.vault.Open(sess.SealedEmail())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	password, err := m.vault.Open(sess.SealedPassword())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}

	token, err := m.upstream.Authenticate(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("[Manager.EnsureUpstreamToken] %w", err)
	}
	metrics.UpstreamRefreshesTotal.Inc()

	expiry := token.ExpiresAt
	sess.UpstreamToken = token.Value
	sess.UpstreamTokenExpiry = &expiry
	if err := m.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("[Manager.EnsureUpstreamToken] %w", err)
	}
	return token.Value, nil
}

// Rotation records the token sets on either side of a rotation.
type Rotation struct {
	Previous TokenSet
	Next     TokenSet
}

// RotateTokens generates a new access and refresh token, saves them on the
// session and writes their indices. The previous indices are left in place
// until CommitRotation. On failure the session is restored before returning.
func (m *Manager) RotateTokens(ctx context.Context, sess *UserSession, accessTTL time.Duration) (*Rotation, error) {
	access, err := vault.RandomHex(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("[Manager.RotateTokens] %w", err)
	}
	refresh, err := vault.RandomHex(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("[Manager.RotateTokens] %w", err)
	}

	rot := &Rotation{
		Previous: sess.Tokens(),
		Next: TokenSet{
			AccessToken:       access,
			RefreshToken:      refresh,
			AccessTokenExpiry: m.nowTime().Add(accessTTL),
		},
	}

	sess.setTokens(rot.Next)
	if err := m.Save(ctx, sess); err != nil {
		sess.setTokens(rot.Previous)
		return nil, fmt.Errorf("[Manager.RotateTokens] %w", err)
	}

	if err := m.writeIndices(ctx, sess.ID, rot.Next); err != nil {
		if rbErr := m.RollbackRotation(ctx, sess, rot); rbErr != nil {
			log.Error().Err(rbErr).Str("sessionId", sess.ID).Msg("rollback after index write failure failed")
		}
		return nil, fmt.Errorf("[Manager.RotateTokens] %w", err)
	}
	return rot, nil
}

// writeIndices points both tokens at the session. The indices live as long
// as a session can; access expiry is enforced from the session record.
func (m *Manager) writeIndices(ctx context.Context, sessionID string, tokens TokenSet) error {
	if err := store.PutString(ctx, m.store, store.AccessTokenKey(tokens.AccessToken), sessionID, store.SessionTTL); err != nil {
		return fmt.Errorf("access token index: %w", err)
	}
	if err := store.PutString(ctx, m.store, store.RefreshTokenKey(tokens.RefreshToken), sessionID, store.SessionTTL); err != nil {
		return fmt.Errorf("refresh token index: %w", err)
	}
	return nil
}

// RollbackRotation restores the pre-rotation tokens and removes the indices
// written for the abandoned ones. Index cleanup is best effort.
func (m *Manager) RollbackRotation(ctx context.Context, sess *UserSession, rot *Rotation) error {
	metrics.RotationRollbacksTotal.Inc()

	sess.setTokens(rot.Previous)
	saveErr := m.Save(ctx, sess)

	m.deleteIndices(ctx, rot.Next)
	if saveErr != nil {
		return fmt.Errorf("[Manager.RollbackRotation] %w", saveErr)
	}
	return nil
}

// CommitRotation removes the indices of the replaced tokens. Best effort: a
// leftover index is healed the next time it is presented.
func (m *Manager) CommitRotation(ctx context.Context, rot *Rotation) {
	previous := rot.Previous
	if previous.AccessToken == rot.Next.AccessToken {
		previous.AccessToken = ""
	}
	if previous.RefreshToken == rot.Next.RefreshToken {
		previous.RefreshToken = ""
	}
	m.deleteIndices(ctx, previous)
}

func (m *Manager) deleteIndices(ctx context.Context, tokens TokenSet) {
	if tokens.AccessToken != "" {
		if err := m.store.Delete(ctx, store.AccessTokenKey(tokens.AccessToken)); err != nil {
			log.Warn().Err(err).Msg("failed to delete access token index")
		}
	}
	if tokens.RefreshToken != "" {
		if err := m.store.Delete(ctx, store.RefreshTokenKey(tokens.RefreshToken)); err != nil {
			log.Warn().Err(err).Msg("failed to delete refresh token index")
		}
	}
}

// PersistDetached writes a session, its access token index and, unless a
// newer login holds it, the user's session pointer on a background
// goroutine. The caller's cancellation does not apply; failures are logged
// and counted, never returned.
func (m *Manager) PersistDetached(ctx context.Context, sess *UserSession) {
	snapshot := sess.clone()
	parent := context.WithoutCancel(ctx)

	m.detached.Add(1)
	go func() {
		defer m.detached.Done()
		ctx, cancel := context.WithTimeout(parent, m.detachedTimeout)
		defer cancel()

		if err := m.persist(ctx, snapshot); err != nil {
			metrics.DetachedWriteFailuresTotal.Inc()
			log.Error().Err(err).Str("sessionId", snapshot.ID).Msg("detached session write failed")
		}
	}()
}

func (m *Manager) persist(ctx context.Context, sess *UserSession) error {
	if err := m.Save(ctx, sess); err != nil {
		return err
	}
	if sess.AccessToken != "" {
		if err := store.PutString(ctx, m.store, store.AccessTokenKey(sess.AccessToken), sess.ID, store.SessionTTL); err != nil {
			return fmt.Errorf("access token index: %w", err)
		}
	}
	if sess.UserID == "" {
		return nil
	}

	// A newer login owns the user index; leave it alone.
	current, err := store.GetString(ctx, m.store, store.UserSessionKey(sess.UserID))
	switch {
	case err == nil && current != sess.ID:
		log.Debug().Str("sessionId", sess.ID).Str("currentSessionId", current).Msg("user has a newer session, user index kept")
		return nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("user index: %w", err)
	}
	if err := store.PutString(ctx, m.store, store.UserSessionKey(sess.UserID), sess.ID, store.SessionTTL); err != nil {
		return fmt.Errorf("user index: %w", err)
	}
	return nil
}

// WaitDetached blocks until all detached writes have finished.
func (m *Manager) WaitDetached() {
	m.detached.Wait()
}

// SetDeliveryAddress replaces the order context carried by the session.
func (m *Manager) SetDeliveryAddress(ctx context.Context, sess *UserSession, address json.RawMessage) error {
	sess.DeliveryAddress = address
	return m.Save(ctx, sess)
}

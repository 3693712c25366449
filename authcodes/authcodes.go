package authcodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/vault"
	"github.com/rs/zerolog/log"
)

const codeBytes = 32

var (
	ErrNotFound = errors.New("authorization code not found")
	ErrExpired  = errors.New("authorization code expired")
)

// AuthorizationCode binds a single-use code to the login that produced it.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"clientId"`
	RedirectURI         string    `json:"redirectUri"`
	UserID              string    `json:"userId"`
	SessionID           string    `json:"sessionId"`
	ExpiresAt           time.Time `json:"expiresAt"`
	CodeChallenge       string    `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string    `json:"codeChallengeMethod,omitempty"`
	Resource            string    `json:"resource,omitempty"`
	Scope               string    `json:"scope,omitempty"`
}

type Repo struct {
	store   store.Store
	nowTime func() time.Time
}

func NewRepo(s store.Store, nowTime func() time.Time) *Repo {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &Repo{store: s, nowTime: nowTime}
}

// Issue generates a code, fills in Code and ExpiresAt and stores the record.
func (r *Repo) Issue(ctx context.Context, code *AuthorizationCode) error {
	value, err := vault.RandomHex(codeBytes)
	if err != nil {
		return fmt.Errorf("[authcodes.Issue] %w", err)
	}
	code.Code = value
	code.ExpiresAt = r.nowTime().Add(store.AuthCodeTTL)

	if err := store.PutJSON(ctx, r.store, store.AuthCodeKey(code.Code), code, store.AuthCodeTTL); err != nil {
		return fmt.Errorf("[authcodes.Issue] %w", err)
	}
	return nil
}

// Lookup returns a live code without consuming it. A code found past its
// expiry is deleted and reported as ErrExpired.
func (r *Repo) Lookup(ctx context.Context, code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var ac AuthorizationCode
	if err := store.GetJSON(ctx, r.store, store.AuthCodeKey(code), &ac); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[authcodes.Lookup] %w", err)
	}
	if !r.nowTime().Before(ac.ExpiresAt) {
		if err := r.Consume(ctx, code); err != nil {
			log.Warn().Err(err).Msg("failed to delete expired authorization code")
		}
		return nil, ErrExpired
	}
	return &ac, nil
}

// Consume deletes a code. It is called before any tokens are issued so a code
// can never be redeemed twice.
func (r *Repo) Consume(ctx context.Context, code string) error {
	if err := r.store.Delete(ctx, store.AuthCodeKey(code)); err != nil {
		return fmt.Errorf("[authcodes.Consume] %w", err)
	}
	return nil
}

package sessions

import (
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-agent-auth/vault"
)

// UserSession is the server-side record behind every bearer credential. It
// holds the user's sealed upstream credentials, the cached upstream token and
// the OAuth tokens most recently issued against it.
type UserSession struct {
	ID     string `json:"id"`
	UserID string `json:"userId"` // fingerprint of the upstream email

	EncryptedEmail    string `json:"encryptedEmail"`
	EmailIV           string `json:"emailIv"`
	EncryptedPassword string `json:"encryptedPassword"`
	PasswordIV        string `json:"passwordIv,omitempty"` // empty on records written before per-field IVs

	UpstreamToken       string     `json:"upstreamToken,omitempty"`
	UpstreamTokenExpiry *time.Time `json:"upstreamTokenExpiry,omitempty"`

	AccessToken       string    `json:"accessToken,omitempty"`
	RefreshToken      string    `json:"refreshToken,omitempty"`
	AccessTokenExpiry time.Time `json:"accessTokenExpiry"`

	// ClientID is set at creation and never changes. Sessions without one
	// predate client binding and cannot be used to mint tokens.
	ClientID string `json:"clientId,omitempty"`

	CreatedAt        time.Time `json:"createdAt"`
	LastUsedAt       time.Time `json:"lastUsedAt"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`

	// DeliveryAddress is order context owned by the ordering layer.
	DeliveryAddress json.RawMessage `json:"deliveryAddress,omitempty"`
}

// TokenSet is the group of fields replaced together on every rotation.
type TokenSet struct {
	AccessToken       string
	RefreshToken      string
	AccessTokenExpiry time.Time
}

func (s *UserSession) Tokens() TokenSet {
	return TokenSet{
		AccessToken:       s.AccessToken,
		RefreshToken:      s.RefreshToken,
		AccessTokenExpiry: s.AccessTokenExpiry,
	}
}

func (s *UserSession) setTokens(t TokenSet) {
	s.AccessToken = t.AccessToken
	s.RefreshToken = t.RefreshToken
	s.AccessTokenExpiry = t.AccessTokenExpiry
}

func (s *UserSession) SealedEmail() vault.Sealed {
	return vault.Sealed{Ciphertext: s.EncryptedEmail, IV: s.EmailIV}
}

func (s *UserSession) SealedPassword() vault.Sealed {
	iv := s.PasswordIV
	if iv == "" {
		iv = s.EmailIV
	}
	return vault.Sealed{Ciphertext: s.EncryptedPassword, IV: iv}
}

// HasCredentials reports whether the session can re-authenticate upstream.
func (s *UserSession) HasCredentials() bool {
	return s.EncryptedEmail != "" && s.EmailIV != "" && s.EncryptedPassword != ""
}

// Expired reports whether the absolute session lifetime has elapsed.
func (s *UserSession) Expired(now time.Time) bool {
	return !s.SessionExpiresAt.IsZero() && !now.Before(s.SessionExpiresAt)
}

func (s *UserSession) clone() *UserSession {
	c := *s
	if s.UpstreamTokenExpiry != nil {
		expiry := *s.UpstreamTokenExpiry
		c.UpstreamTokenExpiry = &expiry
	}
	if s.DeliveryAddress != nil {
		c.DeliveryAddress = append(json.RawMessage(nil), s.DeliveryAddress...)
	}
	return &c
}

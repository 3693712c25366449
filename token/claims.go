package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by every bearer credential. The encrypted credential fields
// let a session be rebuilt if its record is missing from the store. The jti
// is the session's opaque access token.
type Claims struct {
	SessionID        string `json:"sid"`
	ClientID         string `json:"cid,omitempty"`
	SessionCreatedAt int64  `json:"sca,omitempty"` // unix seconds

	EncryptedEmail    string `json:"eem,omitempty"`
	EncryptedPassword string `json:"epw,omitempty"`
	EmailIV           string `json:"eiv,omitempty"`
	PasswordIV        string `json:"piv,omitempty"`

	jwt.RegisteredClaims
}

// HasCredentials reports whether the claims carry enough to rebuild a session.
func (c *Claims) HasCredentials() bool {
	return c.EncryptedEmail != "" && c.EncryptedPassword != "" && c.EmailIV != ""
}

// SessionCreated is the session's creation time, falling back to the
// credential's issue time for credentials minted without sca.
func (c *Claims) SessionCreated() (time.Time, bool) {
	if c.SessionCreatedAt > 0 {
		return time.Unix(c.SessionCreatedAt, 0), true
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time, true
	}
	return time.Time{}, false
}

package clients

import (
	"errors"
	"net/url"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AuthMethod string

const (
	AuthMethodSecretPost  AuthMethod = "client_secret_post"
	AuthMethodSecretBasic AuthMethod = "client_secret_basic"
	AuthMethodNone        AuthMethod = "none" // public clients, PKCE only
)

var (
	ErrNotFound            = errors.New("client not found")
	ErrInvalidSecret       = errors.New("invalid client secret")
	ErrNoRedirectURIs      = errors.New("at least one redirect uri is required")
	ErrInvalidRedirectURI  = errors.New("redirect uris must be absolute and carry no fragment")
	ErrUnsupportedAuthType = errors.New("unsupported token endpoint auth method")
)

// OAuthClient is a dynamically registered agent. Only a hash of the secret is
// stored; the plaintext is returned once at registration.
type OAuthClient struct {
	ID                      string     `json:"clientId"`
	SecretHash              string     `json:"clientSecretHash,omitempty"`
	TokenEndpointAuthMethod AuthMethod `json:"tokenEndpointAuthMethod"`
	RedirectURIs            []string   `json:"redirectUris"`
	Name                    string     `json:"clientName,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
}

// IsPublic returns true if the client authenticates with PKCE alone
func (c *OAuthClient) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// HasRedirectURI reports an exact match against the registered URIs.
func (c *OAuthClient) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// CheckSecret compares a presented secret with the stored hash. Public
// clients never have a secret to check.
func (c *OAuthClient) CheckSecret(secret string) error {
	if c.IsPublic() || c.SecretHash == "" {
		return ErrInvalidSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

func hashSecret(secret string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidateRedirectURIs checks registration metadata.
func ValidateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return ErrNoRedirectURIs
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return ErrInvalidRedirectURI
		}
	}
	return nil
}

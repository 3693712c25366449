package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/vault"
	"golang.org/x/crypto/bcrypt"
)

const secretBytes = 32

// Registration is the metadata an agent submits to the registration endpoint.
type Registration struct {
	RedirectURIs            []string
	Name                    string
	TokenEndpointAuthMethod AuthMethod
}

// Repo stores client registrations. Registrations never expire.
type Repo struct {
	store      store.Store
	bcryptCost int
	nowTime    func() time.Time
}

type RepoOption func(*Repo)

func WithBcryptCost(cost int) RepoOption {
	return func(r *Repo) {
		r.bcryptCost = cost
	}
}

func WithNowTime(nowFunc func() time.Time) RepoOption {
	return func(r *Repo) {
		r.nowTime = nowFunc
	}
}

func NewRepo(s store.Store, options ...RepoOption) *Repo {
	r := &Repo{
		store:      s,
		bcryptCost: bcrypt.DefaultCost,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Register creates a client. The returned secret is empty for public clients
// and is not recoverable later.
func (r *Repo) Register(ctx context.Context, reg Registration) (*OAuthClient, string, error) {
	if err := ValidateRedirectURIs(reg.RedirectURIs); err != nil {
		return nil, "", err
	}

	method := reg.TokenEndpointAuthMethod
	switch method {
	case "":
		method = AuthMethodSecretPost
	case AuthMethodSecretPost, AuthMethodSecretBasic, AuthMethodNone:
	default:
		return nil, "", ErrUnsupportedAuthType
	}

	client := &OAuthClient{
		ID:                      vault.NewID(),
		TokenEndpointAuthMethod: method,
		RedirectURIs:            append([]string(nil), reg.RedirectURIs...),
		Name:                    reg.Name,
		CreatedAt:               r.nowTime(),
	}

	var secret string
	if !client.IsPublic() {
		var err error
		if secret, err = vault.RandomHex(secretBytes); err != nil {
			return nil, "", fmt.Errorf("[Repo.Register] %w", err)
		}
		if client.SecretHash, err = hashSecret(secret, r.bcryptCost); err != nil {
			return nil, "", fmt.Errorf("[Repo.Register] hash secret: %w", err)
		}
	}

	if err := store.PutJSON(ctx, r.store, store.ClientKey(client.ID), client, store.NoExpiry); err != nil {
		return nil, "", fmt.Errorf("[Repo.Register] %w", err)
	}
	return client, secret, nil
}

func (r *Repo) Get(ctx context.Context, clientID string) (*OAuthClient, error) {
	if clientID == "" {
		return nil, ErrNotFound
	}
	var client OAuthClient
	if err := store.GetJSON(ctx, r.store, store.ClientKey(clientID), &client); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[Repo.Get] %w", err)
	}
	return &client, nil
}

// Authenticate loads a client and checks its credentials. Confidential
// clients must present their secret; public clients must not present one.
func (r *Repo) Authenticate(ctx context.Context, clientID, secret string) (*OAuthClient, error) {
	client, err := r.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.IsPublic() {
		if secret != "" {
			return nil, ErrInvalidSecret
		}
		return client, nil
	}
	if err := client.CheckSecret(secret); err != nil {
		return nil, err
	}
	return client, nil
}

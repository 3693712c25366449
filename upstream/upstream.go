package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrAuthentication means the upstream rejected the credentials.
	ErrAuthentication = errors.New("upstream rejected credentials")
	// ErrUnavailable covers transport failures and upstream server errors.
	ErrUnavailable = errors.New("upstream unavailable")
)

// Token is a short-lived upstream bearer credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Authenticator exchanges a user's upstream email and password for a token.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Token, error)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token            string `json:"token"`
	ExpiryUnixMillis int64  `json:"expiryUnixMillis"`
}

var _ Authenticator = (*HTTPAuthenticator)(nil)

// HTTPAuthenticator posts credentials as JSON to the upstream login endpoint.
type HTTPAuthenticator struct {
	url    string
	client *http.Client
}

func NewHTTPAuthenticator(url string, timeout time.Duration) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTPAuthenticator) Authenticate(ctx context.Context, email, password string) (Token, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return Token{}, fmt.Errorf("[HTTPAuthenticator.Authenticate] encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("[HTTPAuthenticator.Authenticate] request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return Token{}, ErrAuthentication
	case resp.StatusCode != http.StatusOK:
		return Token{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Token{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.Token == "" {
		return Token{}, fmt.Errorf("%w: empty token", ErrUnavailable)
	}

	return Token{
		Value:     out.Token,
		ExpiresAt: time.UnixMilli(out.ExpiryUnixMillis),
	}, nil
}

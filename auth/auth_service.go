package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jrsteele09/go-agent-auth/authcodes"
	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/internal/metrics"
	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/token"
	"github.com/jrsteele09/go-agent-auth/upstream"
	"github.com/rs/zerolog/log"
)

// Repos holds the record stores the AuthorizationService reads and writes
type Repos struct {
	Clients *clients.Repo     // Dynamically registered agents
	Codes   *authcodes.Repo   // Single-use authorization codes
	Session *sessions.Manager // User sessions and their token indices
}

// AuthorizationService provides methods for OAuth2 authorization and token requests.
type AuthorizationService struct {
	repos    Repos
	issuer   *token.Issuer
	upstream upstream.Authenticator
	nowTime  func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	repos Repos,
	issuer *token.Issuer,
	authenticator upstream.Authenticator,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes repo is required")
	}
	if repos.Session == nil {
		return nil, errors.New("[NewAuthorizationService] session manager is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewAuthorizationService] issuer is required")
	}
	if authenticator == nil {
		return nil, errors.New("[NewAuthorizationService] upstream authenticator is required")
	}

	authService := &AuthorizationService{
		repos:    repos,
		issuer:   issuer,
		upstream: authenticator,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(authService)
	}
	return authService, nil
}

func (as *AuthorizationService) Issuer() *token.Issuer {
	return as.issuer
}

// ValidateAuthorization checks an authorization request before the login form
// is shown. Errors are *oauthmodel.Error.
func (as *AuthorizationService) ValidateAuthorization(ctx context.Context, params oauthmodel.AuthorizationParameters) (*clients.OAuthClient, error) {
	client, err := as.repos.Clients.Get(ctx, params.ClientID)
	if errors.Is(err, clients.ErrNotFound) {
		return nil, oauthmodel.InvalidClient("unknown client")
	}
	if err != nil {
		log.Err(err).Msg("[AuthorizationService.ValidateAuthorization] client lookup failed")
		return nil, oauthmodel.ServerError("unable to load client")
	}
	if oauthErr := params.ValidateWithClient(client, as.issuer.IssuerURL()); oauthErr != nil {
		return nil, oauthErr
	}
	return client, nil
}

// Login authenticates the user against the upstream service, starts a session
// bound to the requesting client and returns the redirect carrying a fresh
// authorization code.
func (as *AuthorizationService) Login(ctx context.Context, params oauthmodel.AuthorizationParameters, email, password string) (string, error) {
	client, err := as.ValidateAuthorization(ctx, params)
	if err != nil {
		return "", err
	}

	upstreamToken, err := as.upstream.Authenticate(ctx, email, password)
	switch {
	case errors.Is(err, upstream.ErrAuthentication):
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return "", ErrLoginFailed
	case err != nil:
		metrics.LoginsTotal.WithLabelValues("unavailable").Inc()
		log.Err(err).Msg("[AuthorizationService.Login] upstream authentication failed")
		return "", ErrUpstreamUnavailable
	}

	sess, err := as.repos.Session.Create(ctx, sessions.CreateParams{
		Email:    email,
		Password: password,
		ClientID: client.ID,
		Token:    upstreamToken,
	})
	if err != nil {
		log.Err(err).Msg("[AuthorizationService.Login] session create failed")
		return "", ErrUpstreamUnavailable
	}

	code := &authcodes.AuthorizationCode{
		ClientID:            client.ID,
		RedirectURI:         params.RedirectURI,
		UserID:              sess.UserID,
		SessionID:           sess.ID,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: string(params.CodeChallengeMethod),
		Resource:            params.Resource,
		Scope:               params.Scope,
	}
	if err := as.repos.Codes.Issue(ctx, code); err != nil {
		log.Err(err).Msg("[AuthorizationService.Login] code issue failed")
		return "", ErrUpstreamUnavailable
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	log.Info().Str("userId", sess.UserID).Str("clientId", client.ID).Msg("user logged in")
	return callbackRedirect(params.RedirectURI, code.Code, params.State)
}

// callbackRedirect appends code and state to the client's redirect URI,
// keeping any query it was registered with.
func callbackRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("[callbackRedirect] %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

package auth

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-agent-auth/authcodes"
	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/internal/metrics"
	"github.com/jrsteele09/go-agent-auth/internal/utils"
	"github.com/jrsteele09/go-agent-auth/oauth2"
	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/upstream"
	"github.com/rs/zerolog/log"
)

// Token handles the OAuth 2.0 token request. Every returned error is an
// *oauthmodel.Error.
func (as *AuthorizationService) Token(ctx context.Context, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	var (
		resp *oauth2.TokenResponse
		err  *oauthmodel.Error
	)
	switch req.GrantType {
	case oauthmodel.AuthorizationCodeGrant:
		resp, err = as.authorizationCodeGrant(ctx, req)
	case oauthmodel.RefreshTokenGrant:
		resp, err = as.refreshTokenGrant(ctx, req)
	default:
		err = oauthmodel.UnsupportedGrantType(string(req.GrantType))
	}
	if err != nil {
		metrics.TokenErrorsTotal.WithLabelValues(err.Code).Inc()
		return nil, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(req.GrantType)).Inc()
	return resp, nil
}

func (as *AuthorizationService) authenticateClient(ctx context.Context, req oauthmodel.TokenRequest) (*clients.OAuthClient, *oauthmodel.Error) {
	client, err := as.repos.Clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	switch {
	case errors.Is(err, clients.ErrNotFound):
		return nil, oauthmodel.InvalidClient("unknown client")
	case errors.Is(err, clients.ErrInvalidSecret):
		return nil, oauthmodel.InvalidClient("client authentication failed")
	case err != nil:
		log.Err(err).Msg("[AuthorizationService.authenticateClient] client lookup failed")
		return nil, oauthmodel.ServerError("unable to authenticate client")
	}
	return client, nil
}

func (as *AuthorizationService) authorizationCodeGrant(ctx context.Context, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, *oauthmodel.Error) {
	client, oauthErr := as.authenticateClient(ctx, req)
	if oauthErr != nil {
		return nil, oauthErr
	}

	code, err := as.repos.Codes.Lookup(ctx, req.Code)
	switch {
	case errors.Is(err, authcodes.ErrNotFound):
		return nil, oauthmodel.InvalidGrant("authorization code is invalid or already used")
	case errors.Is(err, authcodes.ErrExpired):
		return nil, oauthmodel.InvalidGrant("authorization code has expired")
	case err != nil:
		log.Err(err).Msg("[AuthorizationService.authorizationCodeGrant] code lookup failed")
		return nil, oauthmodel.ServerError("unable to redeem authorization code")
	}

	if code.ClientID != client.ID {
		return nil, oauthmodel.InvalidGrant("authorization code was issued to another client")
	}
	if req.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		return nil, oauthmodel.InvalidGrant("redirect_uri does not match the authorization request")
	}
	if oauthErr := as.checkCodeResource(code, req.Resource); oauthErr != nil {
		return nil, oauthErr
	}
	if oauthErr := checkCodeVerifier(code, req.CodeVerifier); oauthErr != nil {
		return nil, oauthErr
	}

	if err := as.repos.Codes.Consume(ctx, code.Code); err != nil {
		log.Err(err).Msg("[AuthorizationService.authorizationCodeGrant] code consume failed")
		return nil, oauthmodel.ServerError("unable to redeem authorization code")
	}

	sess, err := as.repos.Session.Peek(ctx, code.SessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, oauthmodel.InvalidGrant("session for this authorization code no longer exists")
	}
	if err != nil {
		log.Err(err).Msg("[AuthorizationService.authorizationCodeGrant] session load failed")
		return nil, oauthmodel.ServerError("unable to load session")
	}
	if oauthErr := as.checkSessionBinding(sess, client); oauthErr != nil {
		return nil, oauthErr
	}

	return as.issueTokens(ctx, sess, code.Scope)
}

// checkCodeResource enforces RFC 8707: a resource bound at authorization must
// be repeated unchanged, and an unbound one must belong to this server.
func (as *AuthorizationService) checkCodeResource(code *authcodes.AuthorizationCode, resource string) *oauthmodel.Error {
	switch {
	case code.Resource != "" && resource != "" && code.Resource != resource:
		return oauthmodel.InvalidTarget("resource does not match the authorization request")
	case code.Resource == "" && resource != "" && !oauthmodel.SameOrigin(resource, as.issuer.IssuerURL()):
		return oauthmodel.InvalidTarget("resource is not served by this authorization server")
	}
	return nil
}

func checkCodeVerifier(code *authcodes.AuthorizationCode, verifier string) *oauthmodel.Error {
	if code.CodeChallenge == "" {
		if verifier != "" {
			return oauthmodel.InvalidGrant("code_verifier sent for a code issued without PKCE")
		}
		return nil
	}
	if verifier == "" {
		return oauthmodel.InvalidRequest("code_verifier is required")
	}
	if !oauthmodel.VerifyCodeChallenge(verifier, code.CodeChallenge, oauthmodel.CodeMethodType(code.CodeChallengeMethod)) {
		return oauthmodel.InvalidGrant("code_verifier does not match code_challenge")
	}
	return nil
}

// checkSessionBinding rejects sessions that predate client binding, belong to
// another client or have outlived their absolute lifetime.
func (as *AuthorizationService) checkSessionBinding(sess *sessions.UserSession, client *clients.OAuthClient) *oauthmodel.Error {
	if sess.ClientID == "" {
		return oauthmodel.InvalidGrant("session is not bound to a client, sign in again")
	}
	if sess.ClientID != client.ID {
		return oauthmodel.InvalidGrant("session belongs to another client")
	}
	if sess.Expired(as.nowTime()) {
		return oauthmodel.InvalidGrant("session has expired, sign in again")
	}
	return nil
}

func (as *AuthorizationService) refreshTokenGrant(ctx context.Context, req oauthmodel.TokenRequest) (*oauth2.TokenResponse, *oauthmodel.Error) {
	client, oauthErr := as.authenticateClient(ctx, req)
	if oauthErr != nil {
		return nil, oauthErr
	}
	if req.RefreshToken == "" {
		return nil, oauthmodel.InvalidRequest("refresh_token is required")
	}
	if req.Resource != "" && !oauthmodel.SameOrigin(req.Resource, as.issuer.IssuerURL()) {
		return nil, oauthmodel.InvalidTarget("resource is not served by this authorization server")
	}

	sess, err := as.repos.Session.FindByRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, oauthmodel.InvalidGrant("refresh token is invalid or has been rotated")
	}
	if err != nil {
		log.Err(err).Msg("[AuthorizationService.refreshTokenGrant] session lookup failed")
		return nil, oauthmodel.ServerError("unable to load session")
	}
	if oauthErr := as.checkSessionBinding(sess, client); oauthErr != nil {
		return nil, oauthErr
	}

	if _, err := as.repos.Session.EnsureUpstreamToken(ctx, sess); err != nil {
		if errors.Is(err, upstream.ErrAuthentication) || errors.Is(err, sessions.ErrNoCredentials) {
			return nil, oauthmodel.InvalidGrant("stored credentials were rejected, sign in again")
		}
		log.Err(err).Str("sessionId", sess.ID).Msg("[AuthorizationService.refreshTokenGrant] upstream refresh failed")
		return nil, oauthmodel.ServerError(errIssueRetry)
	}

	return as.issueTokens(ctx, sess, "")
}

// issueTokens rotates the session's tokens and signs the new credential. The
// new indices exist before the credential is signed; the old ones are only
// removed once signing has succeeded.
func (as *AuthorizationService) issueTokens(ctx context.Context, sess *sessions.UserSession, scope string) (*oauth2.TokenResponse, *oauthmodel.Error) {
	rot, err := as.repos.Session.RotateTokens(ctx, sess, as.issuer.TTL())
	if err != nil {
		log.Err(err).Str("sessionId", sess.ID).Msg("[AuthorizationService.issueTokens] rotation failed")
		return nil, oauthmodel.ServerError(errIssueRetry)
	}

	signed, err := as.issuer.Issue(sess)
	if err != nil {
		log.Err(err).Str("sessionId", sess.ID).Msg("[AuthorizationService.issueTokens] signing failed, rolling back")
		if rbErr := as.repos.Session.RollbackRotation(ctx, sess, rot); rbErr != nil {
			log.Err(rbErr).Str("sessionId", sess.ID).Msg("[AuthorizationService.issueTokens] rollback failed")
		}
		return nil, oauthmodel.ServerError(errIssueRetry)
	}

	as.repos.Session.CommitRotation(ctx, rot)

	return &oauth2.TokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    int(as.issuer.TTL().Seconds()),
		RefreshToken: utils.Ptr(rot.Next.RefreshToken),
		Scope:        scope,
	}, nil
}

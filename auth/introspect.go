package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jrsteele09/go-agent-auth/oauth2"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/rs/zerolog/log"
)

var inactive = &oauth2.IntrospectionResponse{Active: false}

// Introspect reports whether a presented token is currently usable (RFC 7662).
// It accepts the signed bearer credential or the opaque access token it
// carries. Unknown, expired and rotated tokens are all simply inactive.
func (as *AuthorizationService) Introspect(ctx context.Context, rawToken string) *oauth2.IntrospectionResponse {
	if rawToken == "" {
		return inactive
	}
	if strings.Count(rawToken, ".") == 2 {
		return as.introspectSigned(ctx, rawToken)
	}
	return as.introspectOpaque(ctx, rawToken)
}

func (as *AuthorizationService) introspectSigned(ctx context.Context, rawToken string) *oauth2.IntrospectionResponse {
	claims, err := as.issuer.Verify(rawToken)
	if err != nil {
		return inactive
	}
	sess, err := as.repos.Session.Peek(ctx, claims.SessionID)
	if err != nil {
		if !errors.Is(err, sessions.ErrNotFound) {
			log.Warn().Err(err).Msg("[AuthorizationService.introspectSigned] session lookup failed")
		}
		return inactive
	}
	if claims.ClientID == "" || sess.ClientID != claims.ClientID || sess.Expired(as.nowTime()) {
		return inactive
	}
	return &oauth2.IntrospectionResponse{
		Active:    true,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		Issuer:    claims.Issuer,
		SessionID: claims.SessionID,
	}
}

func (as *AuthorizationService) introspectOpaque(ctx context.Context, accessToken string) *oauth2.IntrospectionResponse {
	sess, err := as.repos.Session.FindByAccessToken(ctx, accessToken)
	if err != nil {
		if !errors.Is(err, sessions.ErrNotFound) {
			log.Warn().Err(err).Msg("[AuthorizationService.introspectOpaque] session lookup failed")
		}
		return inactive
	}
	now := as.nowTime()
	if sess.ClientID == "" || sess.Expired(now) || !sess.AccessTokenExpiry.After(now) {
		return inactive
	}
	return &oauth2.IntrospectionResponse{
		Active:    true,
		ClientID:  sess.ClientID,
		Subject:   sess.UserID,
		TokenType: "Bearer",
		ExpiresAt: sess.AccessTokenExpiry.Unix(),
		Issuer:    as.issuer.IssuerURL(),
		SessionID: sess.ID,
	}
}

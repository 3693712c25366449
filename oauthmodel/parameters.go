package oauthmodel

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-agent-auth/clients"
)

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are received as query parameters at the authorize endpoint and carried
// through the login form as hidden fields.
type AuthorizationParameters struct {
	// ClientID identifies the agent requesting authorization.
	ClientID string

	// ResponseType must be "code".
	ResponseType ResponseType

	// RedirectURI must exactly match one of the client's registered URIs.
	RedirectURI string

	Scope string

	// State is echoed back on the redirect.
	State string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required for public clients.
	CodeChallenge string

	// CodeChallengeMethod is "S256" or "plain"; empty means plain.
	CodeChallengeMethod CodeMethodType

	// Resource is the RFC 8707 resource indicator, bound to the issued code.
	Resource string
}

// ParseAuthorizationParameters reads the parameters from a query string or form.
func ParseAuthorizationParameters(values url.Values) AuthorizationParameters {
	return AuthorizationParameters{
		ClientID:            values.Get("client_id"),
		ResponseType:        ResponseType(values.Get("response_type")),
		RedirectURI:         values.Get("redirect_uri"),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: CodeMethodType(values.Get("code_challenge_method")),
		Resource:            values.Get("resource"),
	}
}

// Values is the inverse of ParseAuthorizationParameters, used to carry the
// request through the login form.
func (p AuthorizationParameters) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("client_id", p.ClientID)
	set("response_type", string(p.ResponseType))
	set("redirect_uri", p.RedirectURI)
	set("scope", p.Scope)
	set("state", p.State)
	set("code_challenge", p.CodeChallenge)
	set("code_challenge_method", string(p.CodeChallengeMethod))
	set("resource", p.Resource)
	return v
}

// ValidateWithClient checks the request against the registered client and the
// issuer the server runs as.
func (p AuthorizationParameters) ValidateWithClient(client *clients.OAuthClient, issuer string) *Error {
	if !client.HasRedirectURI(p.RedirectURI) {
		return InvalidRequest("redirect_uri is not registered for this client")
	}
	if p.ResponseType != CodeResponseType {
		return UnsupportedResponseType(string(p.ResponseType))
	}
	if p.CodeChallengeMethod != "" && p.CodeChallenge == "" {
		return InvalidRequest("code_challenge_method without code_challenge")
	}
	if !validCodeChallengeMethod(p.CodeChallengeMethod) {
		return InvalidRequest("code_challenge_method must be S256 or plain")
	}
	if p.CodeChallenge != "" && (len(p.CodeChallenge) < 43 || len(p.CodeChallenge) > 128) {
		return InvalidRequest("code_challenge must be 43 to 128 characters")
	}
	if client.IsPublic() && p.CodeChallenge == "" {
		return InvalidRequest("public clients must use PKCE")
	}
	if p.Resource != "" && !SameOrigin(p.Resource, issuer) {
		return InvalidTarget("resource is not served by this authorization server")
	}
	return nil
}

// SameOrigin reports whether two absolute URLs share scheme, host and port.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || !ua.IsAbs() {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil || !ub.IsAbs() {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(originHost(ua), originHost(ub))
}

func originHost(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return u.Hostname() + ":" + port
}

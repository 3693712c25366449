package oauthmodel

// TokenRequest holds parameters for the OAuth2 token request, from either a
// form or a JSON body. Client credentials may also arrive by HTTP Basic auth.
type TokenRequest struct {
	GrantType    GrantType `json:"grant_type"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`

	// authorization_code
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`

	// refresh_token
	RefreshToken string `json:"refresh_token"`

	// Resource is the RFC 8707 resource indicator.
	Resource string `json:"resource"`
}

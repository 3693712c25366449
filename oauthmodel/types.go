package oauthmodel

// ResponseType represents the OAuth 2.0 response type.
type ResponseType string

// CodeResponseType indicates the authorization code flow, the only one served.
const CodeResponseType ResponseType = "code"

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain: code_challenge = code_verifier. Also assumed when a
	// challenge arrives without a method.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	AuthorizationCodeGrant GrantType = "authorization_code"
	RefreshTokenGrant      GrantType = "refresh_token"
)

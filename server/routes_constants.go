package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Discovery
	RouteWellKnownAuthServer        = "/.well-known/oauth-authorization-server"
	RouteWellKnownOpenIDConfig      = "/.well-known/openid-configuration"
	RouteWellKnownProtectedResource = "/.well-known/oauth-protected-resource"
	RouteWellKnownJWKS              = "/.well-known/jwks.json"

	// OAuth
	RouteOAuthRegister   = "/oauth/register"
	RouteOAuthAuthorize  = "/oauth/authorize"
	RouteOAuthLogin      = "/oauth/login"
	RouteOAuthToken      = "/oauth/token"
	RouteOAuthIntrospect = "/oauth/introspect"

	// Protected API
	RouteAPIMe           = "/api/me"
	RouteAPIPaymentPages = "/api/3ds"

	// Card verification pages opened in the user's browser
	RoutePaymentPage = "/3ds/{pageId}"

	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)

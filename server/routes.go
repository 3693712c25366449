package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownAuthServer, ChainMiddleware(s.AuthorizationServerMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.AuthorizationServerMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownProtectedResource, ChainMiddleware(s.ProtectedResourceMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownProtectedResource+s.config.GetResourcePath(), ChainMiddleware(s.ProtectedResourceMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))

	// OAuth
	s.RegisterRouteHandler("POST "+RouteOAuthRegister, ChainMiddleware(s.Register(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuthAuthorize, ChainMiddleware(s.Authorize(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteOAuthLogin, ChainMiddleware(s.Login(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteOAuthToken, ChainMiddleware(s.Token(), s.APIMiddleware(NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuthIntrospect, ChainMiddleware(s.Introspect(), s.APIMiddleware(NoStoreMiddleware)...))

	// Protected API
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.Me(), s.APIMiddleware(s.RequireBearer())...))
	s.RegisterRouteHandler("POST "+RouteAPIPaymentPages, ChainMiddleware(s.CreatePaymentPage(), s.APIMiddleware(s.RequireBearer())...))

	s.RegisterRouteHandler("GET "+RoutePaymentPage, ChainMiddleware(s.PaymentPage(), s.HTMLMiddleWare(NoStoreMiddleware)...))

	// Browser agents preflight the API routes
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(http.NotFound, s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.Health())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

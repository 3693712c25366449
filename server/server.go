package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/jrsteele09/go-agent-auth/auth"
	"github.com/jrsteele09/go-agent-auth/bearer"
	"github.com/jrsteele09/go-agent-auth/internal/config"
	"github.com/jrsteele09/go-agent-auth/paymentpages"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Dependencies are the services the HTTP surface is a thin layer over.
type Dependencies struct {
	Auth         *auth.AuthorizationService
	Resolver     *bearer.Resolver
	PaymentPages *paymentpages.Repo
	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.AuthorizationService
	resolver  *bearer.Resolver
	payments  *paymentpages.Repo
	gatherer  prometheus.Gatherer
	cors      *cors.Cors
	loginTmpl *template.Template
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	if deps.Auth == nil || deps.Resolver == nil || deps.PaymentPages == nil {
		return nil, errors.New("[Server New] auth service, bearer resolver and payment pages are required")
	}
	loginTmpl, err := parseLoginTemplate()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse login template: %w", err)
	}

	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		auth:      deps.Auth,
		resolver:  deps.Resolver,
		payments:  deps.PaymentPages,
		gatherer:  deps.Gatherer,
		loginTmpl: loginTmpl,
		cors: cors.New(cors.Options{
			AllowedOrigins: config.GetAllowedOrigins(),
			AllowedMethods: config.GetAllowedMethods(),
			AllowedHeaders: config.GetAllowedHeaders(),
			ExposedHeaders: []string{"WWW-Authenticate"},
			MaxAge:         86400,
		}),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) issuerURL() string {
	return s.auth.Issuer().IssuerURL()
}

// resourceURL is the protected resource agents present credentials to.
func (s *Server) resourceURL() string {
	return s.issuerURL() + s.config.GetResourcePath()
}

func (s *Server) resourceMetadataURL() string {
	return s.issuerURL() + RouteWellKnownProtectedResource + s.config.GetResourcePath()
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	displayMethod := methodColour(method) + fmt.Sprintf(" %-7s", method) + colourReset
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

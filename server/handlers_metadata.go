package server

import (
	"net/http"

	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/oauth2"
	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

// AuthorizationServerMetadata serves the RFC 8414 document, also used as the
// OpenID configuration so OIDC client libraries can discover the endpoints.
func (s *Server) AuthorizationServerMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.issuerURL()

		resp := oauth2.AuthorizationServerMetadata{
			Issuer:                 baseURL,
			AuthorizationEndpoint:  baseURL + RouteOAuthAuthorize,
			TokenEndpoint:          baseURL + RouteOAuthToken,
			RegistrationEndpoint:   baseURL + RouteOAuthRegister,
			IntrospectionEndpoint:  baseURL + RouteOAuthIntrospect,
			ResponseTypesSupported: []string{string(oauthmodel.CodeResponseType)},
			ResponseModesSupported: []string{"query"},
			GrantTypesSupported: []string{
				string(oauthmodel.AuthorizationCodeGrant),
				string(oauthmodel.RefreshTokenGrant),
			},
			TokenEndpointAuthMethodsSupported: []string{
				string(clients.AuthMethodSecretPost),
				string(clients.AuthMethodSecretBasic),
				string(clients.AuthMethodNone),
			},
			CodeChallengeMethodsSupported:    []string{string(oauthmodel.CodeMethodTypeS256), string(oauthmodel.CodeMethodTypePlain)},
			ScopesSupported:                  s.config.GetScopesSupported(),
			SubjectTypesSupported:            []string{"public"},
			IDTokenSigningAlgValuesSupported: []string{s.auth.Issuer().Algorithm()},
		}
		if jwks, _ := s.auth.Issuer().JWKS(); jwks != nil {
			resp.JWKSURI = baseURL + RouteWellKnownJWKS
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, resp)
	}
}

// ProtectedResourceMetadata serves the RFC 9728 document pointing agents at
// this server.
func (s *Server) ProtectedResourceMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, oauth2.ProtectedResourceMetadata{
			Resource:               s.resourceURL(),
			AuthorizationServers:   []string{s.issuerURL()},
			BearerMethodsSupported: []string{"header"},
			ResourceName:           s.config.GetAppName(),
		})
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens. Only available
// with asymmetric signing.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.auth.Issuer().JWKS()
		if err != nil {
			log.Err(err).Msg("[Server.JWKS] failed to export signing key")
			writeOAuthError(w, oauthmodel.ServerError("failed to get JWKS"))
			return
		}
		if jwks == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

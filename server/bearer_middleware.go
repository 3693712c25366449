package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-agent-auth/bearer"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the *sessions.UserSession behind the bearer credential
const ContextKeySession ContextKey = "session"

// SessionFromContext returns the session resolved by RequireBearer.
func SessionFromContext(ctx context.Context) (*sessions.UserSession, bool) {
	sess, ok := ctx.Value(ContextKeySession).(*sessions.UserSession)
	return sess, ok
}

// RequireBearer resolves the Authorization header to a session. Failures get
// a 401 pointing the agent at the resource metadata so it can start OAuth.
func (s *Server) RequireBearer() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				s.unauthorized(w, "")
				return
			}

			sess, err := s.resolver.Resolve(r.Context(), raw)
			if errors.Is(err, bearer.ErrUnauthenticated) {
				s.unauthorized(w, "invalid_token")
				return
			}
			if err != nil {
				log.Err(err).Msg("[Server.RequireBearer] session lookup failed")
				writeJSONError(w, "server_error", "unable to resolve session", http.StatusInternalServerError)
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), ContextKeySession, sess)))
		}
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, errorCode string) {
	challenge := fmt.Sprintf(`Bearer resource_metadata=%q`, s.resourceMetadataURL())
	if errorCode != "" {
		challenge += fmt.Sprintf(`, error=%q`, errorCode)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSONError(w, "invalid_token", "authentication required", http.StatusUnauthorized)
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

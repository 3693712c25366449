package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func writeOAuthError(w http.ResponseWriter, oauthErr *oauthmodel.Error) {
	writeJSONError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
}

// writeServiceError maps a service error onto the wire. Anything that is not
// a protocol error is logged and hidden behind server_error.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var oauthErr *oauthmodel.Error
	if errors.As(err, &oauthErr) {
		writeOAuthError(w, oauthErr)
		return
	}
	log.Err(err).Msg(op)
	writeOAuthError(w, oauthmodel.ServerError("internal error"))
}

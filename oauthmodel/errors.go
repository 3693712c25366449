package oauthmodel

import (
	"fmt"
	"net/http"
)

// OAuth error codes (RFC 6749 section 5.2, RFC 7591, RFC 8707).
const (
	CodeInvalidRequest         = "invalid_request"
	CodeInvalidClient          = "invalid_client"
	CodeInvalidGrant           = "invalid_grant"
	CodeInvalidTarget          = "invalid_target"
	CodeUnsupportedGrantType   = "unsupported_grant_type"
	CodeUnsupportedResponse    = "unsupported_response_type"
	CodeInvalidClientMetadata  = "invalid_client_metadata"
	CodeInvalidRedirectURI     = "invalid_redirect_uri"
	CodeServerError            = "server_error"
	CodeTemporarilyUnavailable = "temporarily_unavailable"
)

// Error is a protocol error returned to the client as
// {"error": Code, "error_description": Description} with Status.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newError(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...), Status: status}
}

func InvalidRequest(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, http.StatusBadRequest, format, args...)
}

func InvalidClient(format string, args ...any) *Error {
	return newError(CodeInvalidClient, http.StatusUnauthorized, format, args...)
}

func InvalidGrant(format string, args ...any) *Error {
	return newError(CodeInvalidGrant, http.StatusBadRequest, format, args...)
}

func InvalidTarget(format string, args ...any) *Error {
	return newError(CodeInvalidTarget, http.StatusBadRequest, format, args...)
}

func UnsupportedGrantType(grantType string) *Error {
	return newError(CodeUnsupportedGrantType, http.StatusBadRequest, "grant type %q is not supported", grantType)
}

func UnsupportedResponseType(responseType string) *Error {
	return newError(CodeUnsupportedResponse, http.StatusBadRequest, "response type %q is not supported", responseType)
}

func InvalidClientMetadata(format string, args ...any) *Error {
	return newError(CodeInvalidClientMetadata, http.StatusBadRequest, format, args...)
}

func InvalidRedirectURI(format string, args ...any) *Error {
	return newError(CodeInvalidRedirectURI, http.StatusBadRequest, format, args...)
}

// ServerError never carries internal detail; log the cause separately.
func ServerError(description string) *Error {
	return newError(CodeServerError, http.StatusInternalServerError, "%s", description)
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-agent-auth/auth"
	"github.com/jrsteele09/go-agent-auth/oauth2"
	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

// Register handles RFC 7591 dynamic client registration.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauth2.RegistrationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeOAuthError(w, oauthmodel.InvalidClientMetadata("request body must be JSON client metadata"))
			return
		}

		resp, err := s.auth.Register(r.Context(), req)
		if err != nil {
			writeServiceError(w, "[Server.Register] registration failed", err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusCreated, resp)
	}
}

// Authorize validates the authorization request and shows the login form.
// The request parameters travel through the form as hidden fields.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := oauthmodel.ParseAuthorizationParameters(r.URL.Query())

		client, err := s.auth.ValidateAuthorization(r.Context(), params)
		if err != nil {
			writeServiceError(w, "[Server.Authorize] validation failed", err)
			return
		}

		s.renderLogin(w, http.StatusOK, loginPageData{
			AppName:    s.config.GetAppName(),
			ClientName: client.Name,
			Params:     params.Values(),
		})
	}
}

// Login processes the login form submission
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		params := oauthmodel.ParseAuthorizationParameters(r.PostForm)
		email := r.PostFormValue("email")
		password := r.PostFormValue("password")

		data := loginPageData{
			AppName: s.config.GetAppName(),
			Params:  params.Values(),
			Email:   email,
		}
		if email == "" || password == "" {
			data.Error = "Email and password are required"
			s.renderLogin(w, http.StatusBadRequest, data)
			return
		}

		redirectURL, err := s.auth.Login(r.Context(), params, email, password)
		switch {
		case errors.Is(err, auth.ErrLoginFailed):
			data.Error = "Invalid email or password"
			s.renderLogin(w, http.StatusUnauthorized, data)
			return
		case errors.Is(err, auth.ErrUpstreamUnavailable):
			data.Error = err.Error()
			s.renderLogin(w, http.StatusServiceUnavailable, data)
			return
		case err != nil:
			writeServiceError(w, "[Server.Login] login failed", err)
			return
		}

		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}

// Token exchanges an authorization code or refresh token for credentials.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenReq, oauthErr := parseTokenRequest(w, r)
		if oauthErr != nil {
			writeOAuthError(w, oauthErr)
			return
		}

		tokenResponse, err := s.auth.Token(r.Context(), *tokenReq)
		if err != nil {
			var tokenErr *oauthmodel.Error
			if errors.As(err, &tokenErr) && tokenErr.Status == http.StatusUnauthorized {
				if _, _, basic := r.BasicAuth(); basic {
					w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
				}
			}
			writeServiceError(w, "[Server.Token] token request failed", err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse)
	}
}

// Introspect reports token state per RFC 7662.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, oauthErr := readParameters(w, r)
		if oauthErr != nil {
			writeOAuthError(w, oauthErr)
			return
		}
		token := values.Get("token")
		if token == "" {
			writeOAuthError(w, oauthmodel.InvalidRequest("token parameter is required"))
			return
		}
		writeJSON(w, http.StatusOK, s.auth.Introspect(r.Context(), token))
	}
}

// parseTokenRequest accepts a form or JSON body. Client credentials may come
// from HTTP Basic auth, form-encoded as RFC 6749 section 2.3.1 requires.
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (*oauthmodel.TokenRequest, *oauthmodel.Error) {
	values, oauthErr := readParameters(w, r)
	if oauthErr != nil {
		return nil, oauthErr
	}

	req := &oauthmodel.TokenRequest{
		GrantType:    oauthmodel.GrantType(values.Get("grant_type")),
		ClientID:     values.Get("client_id"),
		ClientSecret: values.Get("client_secret"),
		Code:         values.Get("code"),
		RedirectURI:  values.Get("redirect_uri"),
		CodeVerifier: values.Get("code_verifier"),
		RefreshToken: values.Get("refresh_token"),
		Resource:     values.Get("resource"),
	}

	if user, pass, ok := r.BasicAuth(); ok {
		clientID, err := url.QueryUnescape(user)
		if err != nil {
			return nil, oauthmodel.InvalidClient("malformed basic credentials")
		}
		secret, err := url.QueryUnescape(pass)
		if err != nil {
			return nil, oauthmodel.InvalidClient("malformed basic credentials")
		}
		if req.ClientID != "" && req.ClientID != clientID {
			return nil, oauthmodel.InvalidRequest("client_id does not match the authorization header")
		}
		if req.ClientSecret != "" {
			return nil, oauthmodel.InvalidRequest("client credentials sent by more than one method")
		}
		req.ClientID, req.ClientSecret = clientID, secret
	}

	if req.GrantType == "" {
		return nil, oauthmodel.InvalidRequest("grant_type is required")
	}
	if req.ClientID == "" {
		return nil, oauthmodel.InvalidClient("client_id is required")
	}
	return req, nil
}

// readParameters reads request parameters from a JSON object or a form body.
func readParameters(w http.ResponseWriter, r *http.Request) (url.Values, *oauthmodel.Error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, oauthmodel.InvalidRequest("request body is not valid JSON")
		}
		values := url.Values{}
		for k, v := range body {
			if str, ok := v.(string); ok {
				values.Set(k, str)
			}
		}
		return values, nil
	}

	if err := r.ParseForm(); err != nil {
		log.Debug().Err(err).Msg("[readParameters] form parse failed")
		return nil, oauthmodel.InvalidRequest("failed to parse form data")
	}
	return r.PostForm, nil
}

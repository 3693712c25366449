package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-agent-auth/auth"
	"github.com/jrsteele09/go-agent-auth/authcodes"
	"github.com/jrsteele09/go-agent-auth/bearer"
	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/internal/config"
	"github.com/jrsteele09/go-agent-auth/internal/metrics"
	"github.com/jrsteele09/go-agent-auth/oauth2"
	"github.com/jrsteele09/go-agent-auth/paymentpages"
	"github.com/jrsteele09/go-agent-auth/server"
	"github.com/jrsteele09/go-agent-auth/sessions"
	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/store/memstore"
	"github.com/jrsteele09/go-agent-auth/token"
	"github.com/jrsteele09/go-agent-auth/token/keys"
	"github.com/jrsteele09/go-agent-auth/upstream/fakeupstream"
	"github.com/jrsteele09/go-agent-auth/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	xoauth2 "golang.org/x/oauth2"
)

const (
	testKey         = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testEmail       = "jane@example.com"
	testPassword    = "correct-horse"
	testRedirectURI = "https://x/cb"
)

type testFixture struct {
	ts       *httptest.Server
	mem      *memstore.MemStore
	manager  *sessions.Manager
	upstream *fakeupstream.FakeAuthenticator
	// noRedirect stops at the login redirect so the code can be read.
	noRedirect *http.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://agent.example")

	f := &testFixture{}
	var handler http.Handler
	f.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(f.ts.Close)

	f.mem = memstore.New()
	t.Cleanup(f.mem.Close)
	v, err := vault.New(testKey)
	require.NoError(t, err)
	f.upstream = fakeupstream.NewFakeAuthenticator()
	f.upstream.AddAccount(testEmail, testPassword)

	keyPair, err := keys.GenerateRSAKeyPair("", 2048)
	require.NoError(t, err)
	issuer := token.NewIssuer(keys.NewKeyPairSigner(keyPair), f.ts.URL)

	f.manager, err = sessions.NewManager(f.mem, v, f.upstream)
	require.NoError(t, err)
	t.Cleanup(f.manager.WaitDetached)

	authService, err := auth.NewAuthorizationService(auth.Repos{
		Clients: clients.NewRepo(f.mem, clients.WithBcryptCost(bcrypt.MinCost)),
		Codes:   authcodes.NewRepo(f.mem, nil),
		Session: f.manager,
	}, issuer, f.upstream)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	srv, err := server.New(config.New(), server.Dependencies{
		Auth:         authService,
		Resolver:     bearer.NewResolver(issuer, f.manager),
		PaymentPages: paymentpages.NewRepo(f.mem, nil),
		Gatherer:     registry,
	})
	require.NoError(t, err)
	handler = srv

	f.noRedirect = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	return f
}

func (f *testFixture) postJSON(t *testing.T, path, bearerToken string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) get(t *testing.T, path, bearerToken string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	require.NoError(t, err)
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) register(t *testing.T) oauth2.RegistrationResponse {
	t.Helper()
	resp := f.postJSON(t, server.RouteOAuthRegister, "", oauth2.RegistrationRequest{
		RedirectURIs: []string{testRedirectURI},
		ClientName:   "Ordering Agent",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var reg oauth2.RegistrationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	return reg
}

// login shows the form for authURL and submits it, returning the callback.
func (f *testFixture) login(t *testing.T, authURL, password string) *http.Response {
	t.Helper()
	page := f.get(t, strings.TrimPrefix(authURL, f.ts.URL), "")
	require.Equal(t, http.StatusOK, page.StatusCode)
	html, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	require.Contains(t, string(html), "Ordering Agent")

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	form := u.Query()
	form.Set("email", testEmail)
	form.Set("password", password)

	resp, err := f.noRedirect.PostForm(f.ts.URL+server.RouteOAuthLogin, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAgentAuthorizationEndToEnd(t *testing.T) {
	f := setupTestFixture(t)
	ctx := oidc.ClientContext(context.Background(), http.DefaultClient)

	provider, err := oidc.NewProvider(ctx, f.ts.URL)
	require.NoError(t, err)

	reg := f.register(t)
	conf := &xoauth2.Config{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  testRedirectURI,
	}
	resource := xoauth2.SetAuthURLParam("resource", f.ts.URL+"/mcp")
	verifier := xoauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL("st4te", xoauth2.S256ChallengeOption(verifier), resource)

	callback := f.login(t, authURL, testPassword)
	require.Equal(t, http.StatusFound, callback.StatusCode)
	location, err := url.Parse(callback.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "x", location.Host)
	require.Equal(t, "st4te", location.Query().Get("state"))

	tok, err := conf.Exchange(ctx, location.Query().Get("code"), xoauth2.VerifierOption(verifier), resource)
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.RefreshToken)

	me := f.get(t, server.RouteAPIMe, tok.AccessToken)
	require.Equal(t, http.StatusOK, me.StatusCode)
	first := decode[map[string]any](t, me)
	require.Equal(t, reg.ClientID, first["clientId"])
	accessIndices := f.mem.Keys("token:")
	require.Len(t, accessIndices, 1)

	refreshed, err := conf.TokenSource(ctx, &xoauth2.Token{
		RefreshToken: tok.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}).Token()
	require.NoError(t, err)
	require.NotEqual(t, tok.RefreshToken, refreshed.RefreshToken)

	t.Run("old access index is gone", func(t *testing.T) {
		current := f.mem.Keys("token:")
		require.Len(t, current, 1)
		require.NotEqual(t, accessIndices[0], current[0])
	})

	t.Run("new credential resolves the same session", func(t *testing.T) {
		me := f.get(t, server.RouteAPIMe, refreshed.AccessToken)
		require.Equal(t, http.StatusOK, me.StatusCode)
		second := decode[map[string]any](t, me)
		require.Equal(t, first["sessionId"], second["sessionId"])
	})

	t.Run("rotated refresh token is refused", func(t *testing.T) {
		_, err := conf.TokenSource(ctx, &xoauth2.Token{
			RefreshToken: tok.RefreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		}).Token()
		var retrieveErr *xoauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		require.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
	})

	t.Run("code cannot be replayed", func(t *testing.T) {
		_, err := conf.Exchange(ctx, location.Query().Get("code"), xoauth2.VerifierOption(verifier), resource)
		var retrieveErr *xoauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		require.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
	})
}

func TestLoginFailures(t *testing.T) {
	f := setupTestFixture(t)
	reg := f.register(t)
	conf := &xoauth2.Config{ClientID: reg.ClientID, RedirectURL: testRedirectURI, Endpoint: xoauth2.Endpoint{
		AuthURL: f.ts.URL + server.RouteOAuthAuthorize,
	}}

	t.Run("wrong password renders the form again", func(t *testing.T) {
		resp := f.login(t, conf.AuthCodeURL("s"), "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "Invalid email or password")
		require.Contains(t, string(body), reg.ClientID)
	})

	t.Run("unregistered redirect uri", func(t *testing.T) {
		bad := *conf
		bad.RedirectURL = "https://evil.example/cb"
		resp := f.get(t, strings.TrimPrefix(bad.AuthCodeURL("s"), f.ts.URL), "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decode[map[string]string](t, resp)["error"])
	})
}

func TestTokenEndpointErrors(t *testing.T) {
	f := setupTestFixture(t)
	reg := f.register(t)

	postForm := func(t *testing.T, form url.Values, basicUser, basicPass string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.ts.URL+server.RouteOAuthToken, strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if basicUser != "" {
			req.SetBasicAuth(url.QueryEscape(basicUser), url.QueryEscape(basicPass))
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("unknown client", func(t *testing.T) {
		resp := postForm(t, url.Values{"grant_type": {"authorization_code"}, "client_id": {"nope"}, "code": {"x"}}, "", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		require.Equal(t, "invalid_client", decode[map[string]string](t, resp)["error"])
	})

	t.Run("bad basic secret", func(t *testing.T) {
		resp := postForm(t, url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"x"}}, reg.ClientID, "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		resp := postForm(t, url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"x"}}, reg.ClientID, reg.ClientSecret)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_grant", decode[map[string]string](t, resp)["error"])
	})

	t.Run("json body", func(t *testing.T) {
		resp := f.postJSON(t, server.RouteOAuthToken, "", map[string]string{
			"grant_type":    "password",
			"client_id":     reg.ClientID,
			"client_secret": reg.ClientSecret,
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "unsupported_grant_type", decode[map[string]string](t, resp)["error"])
	})
}

func TestProtectedResource(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing credential points at resource metadata", func(t *testing.T) {
		resp := f.get(t, server.RouteAPIMe, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		challenge := resp.Header.Get("WWW-Authenticate")
		require.Contains(t, challenge, `resource_metadata="`+f.ts.URL+"/.well-known/oauth-protected-resource/mcp")

		meta := decode[oauth2.ProtectedResourceMetadata](t, f.get(t, "/.well-known/oauth-protected-resource/mcp", ""))
		require.Equal(t, f.ts.URL+"/mcp", meta.Resource)
		require.Equal(t, []string{f.ts.URL}, meta.AuthorizationServers)
	})

	t.Run("garbage credential", func(t *testing.T) {
		resp := f.get(t, server.RouteAPIMe, "not-a-jwt")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), `error="invalid_token"`)
	})

	t.Run("metadata and jwks", func(t *testing.T) {
		meta := decode[oauth2.AuthorizationServerMetadata](t, f.get(t, server.RouteWellKnownAuthServer, ""))
		require.Equal(t, f.ts.URL, meta.Issuer)
		require.Equal(t, f.ts.URL+server.RouteOAuthRegister, meta.RegistrationEndpoint)
		require.Contains(t, meta.CodeChallengeMethodsSupported, "S256")
		require.Equal(t, []string{"RS256"}, meta.IDTokenSigningAlgValuesSupported)

		jwks := decode[keys.JWKS](t, f.get(t, meta.JWKSURI[len(f.ts.URL):], ""))
		require.Len(t, jwks.Keys, 1)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, f.ts.URL+server.RouteOAuthToken, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://agent.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "https://agent.example", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("health and metrics", func(t *testing.T) {
		require.Equal(t, http.StatusOK, f.get(t, server.RouteHealth, "").StatusCode)
		resp := f.get(t, server.RouteMetrics, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "agent_auth_rotation_rollbacks_total")
	})
}

func TestPaymentPages(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("requires a credential", func(t *testing.T) {
		resp := f.postJSON(t, server.RouteAPIPaymentPages, "", map[string]string{"html": "<p>x</p>"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown page", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, f.get(t, "/3ds/missing", "").StatusCode)
	})

	t.Run("page is shortened once opened", func(t *testing.T) {
		id, err := paymentpages.NewRepo(f.mem, nil).Create(ctx, "<form id=\"acs\"></form>")
		require.NoError(t, err)

		resp := f.get(t, "/3ds/"+id, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `id="acs"`)

		ttl, ok := f.mem.TTL(store.PaymentPageKey(id))
		require.True(t, ok)
		require.LessOrEqual(t, ttl, store.UsedPaymentPageTTL)
	})
}

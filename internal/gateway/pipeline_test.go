package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/authgate/internal/rules"
	"github.com/l0p7/authgate/internal/session"
)

type staticStore struct {
	cfg rules.Config
}

func (s *staticStore) Load(context.Context) (rules.Config, error) {
	return s.cfg, nil
}

type fixture struct {
	pipeline *Pipeline
	identity *identityControl
	config   *rules.Config
}

type identityControl struct {
	status int
	body   string
}

func newFixture(t *testing.T, callbackDomain string) *fixture {
	t.Helper()

	identity := &identityControl{status: http.StatusOK, body: `{"user": {"id": "u-1"}}`}
	identityServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(identity.status)
		_, _ = w.Write([]byte(identity.body))
	}))
	t.Cleanup(identityServer.Close)

	cfg := rules.Config{
		Auth: rules.AuthConfig{
			SessionURL:    identityServer.URL,
			LoginRedirect: "https://id.example.com/login",
		},
		Routes: []rules.Rule{
			{Host: "app.example.com", Path: "/admin/*", Require: rules.Requirement{Roles: []string{"admin"}}},
			{Host: "app.example.com", Path: "/*", Require: rules.Requirement{Roles: []string{"user"}}},
		},
	}
	store := &staticStore{cfg: cfg}
	manager := rules.NewManager(store, nil)
	require.NoError(t, manager.Reload(context.Background()))

	resolver := session.NewResolver(session.Disabled{}, session.NewClient(), nil, nil)
	pipe := New(nil, Options{
		Manager:        manager,
		Resolver:       resolver,
		CallbackDomain: callbackDomain,
	})
	return &fixture{pipeline: pipe, identity: identity, config: &store.cfg}
}

func forwardedRequest(host, path string, token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth", nil)
	r.Header.Set("X-Forwarded-Host", host)
	r.Header.Set("X-Forwarded-Uri", path)
	r.Header.Set("X-Forwarded-Proto", "https")
	if token != "" {
		r.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	return r
}

func decodeNext(t *testing.T, location string) (loginBase string, next string) {
	t.Helper()
	parsed, err := url.Parse(location)
	require.NoError(t, err)
	encoded := parsed.Query().Get("next")
	require.NotEmpty(t, encoded, "redirect location %q missing next", location)
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	parsed.RawQuery = ""
	return parsed.String(), string(decoded)
}

func TestUnmatchedRequestIsAllowed(t *testing.T) {
	fx := newFixture(t, "")
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("public.example.com", "/", ""))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMissingTokenRedirectsToLogin(t *testing.T) {
	fx := newFixture(t, "")
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", ""))
	require.Equal(t, http.StatusFound, rr.Code)

	base, next := decodeNext(t, rr.Header().Get("Location"))
	require.Equal(t, "https://id.example.com/login", base)
	require.Equal(t, "https://app.example.com/dashboard", next)
}

func TestAuthorizedRequestSetsIdentityHeaders(t *testing.T) {
	fx := newFixture(t, "")
	fx.identity.body = `{"user": {
		"id": "u-1",
		"email": "dev@example.com",
		"roles": ["user", "developer"],
		"permissions": ["deploy"]
	}}`
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", "good-token"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "u-1", rr.Header().Get("X-Auth-User-Id"))
	require.Equal(t, "dev@example.com", rr.Header().Get("X-Auth-User-Email"))
	require.Equal(t, "user,developer", rr.Header().Get("X-Auth-User-Roles"))
	require.Equal(t, "deploy", rr.Header().Get("X-Auth-User-Permissions"))
}

func TestAuthorizedRequestOmitsEmptyListHeaders(t *testing.T) {
	fx := newFixture(t, "")
	fx.config.Routes = []rules.Rule{
		{Host: "app.example.com", Path: "/*", Require: rules.Requirement{Permissions: []string{"view"}}},
	}
	require.NoError(t, fx.pipeline.manager.Reload(context.Background()))
	fx.identity.body = `{"user": {"id": "u-1", "permissions": ["view"]}}`
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/x", "good-token"))
	require.Equal(t, http.StatusOK, rr.Code)
	_, present := rr.Header()["X-Auth-User-Roles"]
	require.False(t, present, "empty roles must not produce a header")
}

func TestInsufficientRolesIsForbidden(t *testing.T) {
	fx := newFixture(t, "")
	fx.identity.body = `{"user": {"id": "u-1", "roles": ["user"]}}`
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/admin/users", "good-token"))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "Forbidden:")
	require.Contains(t, rr.Body.String(), "admin")
	require.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
}

func TestRejectedTokenRedirectsToLogin(t *testing.T) {
	fx := newFixture(t, "")
	fx.identity.status = http.StatusUnauthorized
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", "stale-token"))
	require.Equal(t, http.StatusFound, rr.Code)
}

func TestIdentityOutageRedirectsToLogin(t *testing.T) {
	fx := newFixture(t, "")
	fx.config.Auth.SessionURL = "http://127.0.0.1:1"
	require.NoError(t, fx.pipeline.manager.Reload(context.Background()))
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", "token"))
	require.Equal(t, http.StatusFound, rr.Code)
}

func TestMalformedScopeClauseIsInternalError(t *testing.T) {
	fx := newFixture(t, "")
	fx.config.Routes = []rules.Rule{{
		Host:    "app.example.com",
		Path:    "/*",
		Require: rules.Requirement{Scopes: json.RawMessage(`{"bad": "shape"}`)},
	}}
	require.NoError(t, fx.pipeline.manager.Reload(context.Background()))
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/x", "good-token"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "Internal server error:")
}

func TestCallbackDomainWrapsNext(t *testing.T) {
	fx := newFixture(t, "https://auth.example.com/")
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", ""))
	require.Equal(t, http.StatusFound, rr.Code)

	_, next := decodeNext(t, rr.Header().Get("Location"))
	inner, err := url.Parse(next)
	require.NoError(t, err)
	require.Equal(t, "auth.example.com", inner.Host)
	require.Equal(t, "/auth/callback", inner.Path)

	decoded, err := base64.RawURLEncoding.DecodeString(inner.Query().Get("next"))
	require.NoError(t, err)
	require.Equal(t, "https://app.example.com/dashboard", string(decoded))
}

func TestLoginRedirectWithQueryUsesAmpersand(t *testing.T) {
	fx := newFixture(t, "")
	fx.config.Auth.LoginRedirect = "https://id.example.com/login?tenant=acme"
	require.NoError(t, fx.pipeline.manager.Reload(context.Background()))
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", ""))
	location := rr.Header().Get("Location")
	require.Contains(t, location, "login?tenant=acme&next=")
}

func TestQueryParametersBeatHeaders(t *testing.T) {
	fx := newFixture(t, "")
	r := httptest.NewRequest(http.MethodGet,
		"/auth?X-Forwarded-Host=app.example.com&X-Forwarded-Uri=%2Fdashboard&X-Forwarded-Proto=https", nil)
	r.Header.Set("X-Forwarded-Host", "other.example.com")
	r.Header.Set("X-Forwarded-Uri", "/other")
	rr := httptest.NewRecorder()

	fx.pipeline.ServeAuth(rr, r)
	require.Equal(t, http.StatusFound, rr.Code)

	_, next := decodeNext(t, rr.Header().Get("Location"))
	require.Equal(t, "https://app.example.com/dashboard", next)
}

func TestMissingMetadataFallsBack(t *testing.T) {
	fx := newFixture(t, "")
	rr := httptest.NewRecorder()

	// No forwarded metadata at all: the synthetic host matches no rule, so
	// the request passes.
	fx.pipeline.ServeAuth(rr, httptest.NewRequest(http.MethodGet, "/auth", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestConfiguredCookieNameIsUsed(t *testing.T) {
	fx := newFixture(t, "")
	fx.config.CookieName = "gateway_session"
	require.NoError(t, fx.pipeline.manager.Reload(context.Background()))

	rr := httptest.NewRecorder()
	r := forwardedRequest("app.example.com", "/dashboard", "")
	r.AddCookie(&http.Cookie{Name: "gateway_session", Value: "good-token"})
	fx.identity.body = `{"user": {"id": "u-1", "roles": ["user"]}}`

	fx.pipeline.ServeAuth(rr, r)
	require.Equal(t, http.StatusOK, rr.Code)

	// The default-named cookie no longer counts once a custom name is set.
	rr = httptest.NewRecorder()
	fx.pipeline.ServeAuth(rr, forwardedRequest("app.example.com", "/dashboard", "good-token"))
	require.Equal(t, http.StatusFound, rr.Code)
}

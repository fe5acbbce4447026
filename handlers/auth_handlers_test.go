package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelienallenic/api/models"
	"aurelienallenic/api/oauth"
)

func TestLogin(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "jane@example.com", testPassword, models.RoleUser)
	e.createUser(t, "google@example.com", "", models.RoleUser)

	tests := []struct {
		name     string
		email    string
		password string
		want     int
		errMsg   string
	}{
		{name: "ok with messy email", email: "  JANE@example.com ", password: testPassword + " ", want: http.StatusOK},
		{name: "bad password", email: "jane@example.com", password: "nope", want: http.StatusUnauthorized, errMsg: "invalid credentials"},
		{name: "unknown email", email: "who@example.com", password: testPassword, want: http.StatusUnauthorized, errMsg: "invalid credentials"},
		{name: "google only", email: "google@example.com", password: "whatever", want: http.StatusUnauthorized, errMsg: "this account uses Google sign-in"},
		{name: "missing password", email: "jane@example.com", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.doJSON(http.MethodPost, "/auth/login", map[string]string{"email": tt.email, "password": tt.password})
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, decode(t, w)["error"])
			}
			if tt.want == http.StatusOK {
				body := decode(t, w)
				user := body["user"].(map[string]any)
				assert.Equal(t, "jane@example.com", user["email"])
				assert.NotNil(t, findCookie(w, "session.sid"))
			}
		})
	}
}

func TestLoginSwitchesGoogleAccountWithPassword(t *testing.T) {
	e := newTestEnv(t)
	u := e.createUser(t, "mixed@example.com", testPassword, models.RoleUser)
	u.AuthMethod = models.AuthMethodGoogle
	require.NoError(t, e.mem.UpdateUser(context.Background(), u))

	e.login(t, "mixed@example.com", testPassword)

	got, err := e.mem.GetUserByEmail(context.Background(), "mixed@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.AuthMethodEmail, got.AuthMethod)
}

func TestCheckAndLogout(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "jane@example.com", testPassword, models.RoleUser)

	w := e.doJSON(http.MethodGet, "/auth/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"isAuthenticated":false}`, w.Body.String())

	cookie := e.login(t, "jane@example.com", testPassword)
	w = e.doJSON(http.MethodGet, "/auth/check", nil, cookie)
	body := decode(t, w)
	assert.Equal(t, true, body["isAuthenticated"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "jane@example.com", user["email"])
	assert.Equal(t, "jane@example.com", user["name"])

	w = e.doJSON(http.MethodPost, "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := findCookie(w, "session.sid")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	w = e.doJSON(http.MethodGet, "/auth/check", nil, cookie)
	assert.Equal(t, false, decode(t, w)["isAuthenticated"])
}

func TestCreateUser(t *testing.T) {
	e := newTestEnv(t)
	admin := e.adminCookie(t)

	w := e.doJSON(http.MethodPost, "/auth/create-user", map[string]any{
		"email": "New@Example.com", "password": "pw123456", "name": "New", "role": "admin",
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "new@example.com", user["email"])
	assert.Equal(t, "email", user["authMethod"])
	assert.Equal(t, "admin", user["role"])

	w = e.doJSON(http.MethodPost, "/auth/create-user", map[string]any{"email": "google@example.com", "authMethod": "google"}, admin)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{name: "duplicate", payload: map[string]any{"email": "new@example.com", "password": "pw"}},
		{name: "missing email", payload: map[string]any{"password": "pw"}},
		{name: "email without password", payload: map[string]any{"email": "x@example.com"}},
		{name: "bad method", payload: map[string]any{"email": "y@example.com", "password": "pw", "authMethod": "github"}},
		{name: "bad role", payload: map[string]any{"email": "z@example.com", "password": "pw", "role": "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.doJSON(http.MethodPost, "/auth/create-user", tt.payload, admin)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "jane@example.com", testPassword, models.RoleUser)
	user := e.login(t, "jane@example.com", testPassword)

	w := e.doJSON(http.MethodPost, "/auth/create-user", map[string]any{"email": "a@example.com", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.doJSON(http.MethodPost, "/auth/create-user", map[string]any{"email": "a@example.com", "password": "pw"}, user)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGoogleNotConfigured(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusServiceUnavailable, e.doJSON(http.MethodGet, "/auth/google", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, e.doJSON(http.MethodGet, "/auth/google/callback", nil).Code)
}

// googleState starts the flow and returns the state cookie set for it.
func googleState(t *testing.T, e *testEnv) *http.Cookie {
	t.Helper()
	w := e.doJSON(http.MethodGet, "/auth/google", nil)
	require.Equal(t, http.StatusFound, w.Code)
	state := findCookie(w, oauthStateCookie)
	require.NotNil(t, state)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	return state
}

func TestGoogleCallback(t *testing.T) {
	identity := &oauth.Identity{Subject: "sub-1", Email: "Jane@example.com", Name: "Jane", Picture: "https://pic.test/jane.png"}

	t.Run("links existing account", func(t *testing.T) {
		e := newTestEnv(t, func(o *envOptions) { o.google = &fakeGoogle{identity: identity} })
		e.createUser(t, "jane@example.com", "", models.RoleUser)
		state := googleState(t, e)

		w := e.do(http.MethodGet, "/auth/google/callback?code=abc&state="+state.Value, nil, "", state)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, frontendURL+"/dashboard?success=logged_in", w.Header().Get("Location"))
		assert.NotNil(t, findCookie(w, "session.sid"))

		u, err := e.mem.GetUserByEmail(context.Background(), "jane@example.com")
		require.NoError(t, err)
		require.NotNil(t, u.GoogleID)
		assert.Equal(t, "sub-1", *u.GoogleID)
		assert.Equal(t, "Jane", u.Name)
		assert.Equal(t, "https://pic.test/jane.png", u.Picture)
		assert.Equal(t, models.AuthMethodGoogle, u.AuthMethod)
	})

	redirects := []struct {
		name     string
		provider *fakeGoogle
		badState bool
		want     string
	}{
		{name: "unknown account", provider: &fakeGoogle{identity: &oauth.Identity{Subject: "sub-2", Email: "who@example.com"}}, want: "account_not_found"},
		{name: "no email", provider: &fakeGoogle{identity: &oauth.Identity{Subject: "sub-3"}, err: oauth.ErrNoEmail}, want: "no_email"},
		{name: "exchange failure", provider: &fakeGoogle{err: errors.New("boom")}, want: "oauth_failed"},
		{name: "state mismatch", provider: &fakeGoogle{identity: identity}, badState: true, want: "oauth_failed"},
	}
	for _, tt := range redirects {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, func(o *envOptions) { o.google = tt.provider })
			state := googleState(t, e)
			value := state.Value
			if tt.badState {
				value = "forged"
			}

			w := e.do(http.MethodGet, "/auth/google/callback?code=abc&state="+value, nil, "", state)
			require.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, frontendURL+"/login?error="+tt.want, w.Header().Get("Location"))
			assert.Nil(t, findCookie(w, "session.sid"))
		})
	}
}

func TestLoginRateLimitHeaders(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "500", w.Header().Get("X-RateLimit-Limit"))
}

func loginFrom(e *testEnv, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestLoginRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	e := newTestEnv(t)

	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		w := loginFrom(e, "203.0.113.7:40000", xff)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, strconv.Itoa(499-i), w.Header().Get("X-RateLimit-Remaining"), "request %d", i)
	}
}

func TestLoginRateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	e := newTestEnv(t, func(o *envOptions) { o.proxies = []string{"10.0.0.1"} })

	for _, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		w := loginFrom(e, "10.0.0.1:40000", xff)
		assert.Equal(t, "499", w.Header().Get("X-RateLimit-Remaining"), xff)
	}

	w := loginFrom(e, "10.0.0.1:40000", "198.51.100.1")
	assert.Equal(t, "498", w.Header().Get("X-RateLimit-Remaining"))
}

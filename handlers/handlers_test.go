package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"aurelienallenic/api/aggregator"
	"aurelienallenic/api/filestore"
	"aurelienallenic/api/logger"
	"aurelienallenic/api/mailer"
	"aurelienallenic/api/metrics"
	"aurelienallenic/api/middleware"
	"aurelienallenic/api/models"
	"aurelienallenic/api/oauth"
	"aurelienallenic/api/recaptcha"
	"aurelienallenic/api/session"
	"aurelienallenic/api/store/memstore"
	"aurelienallenic/api/utils"
	"aurelienallenic/api/worker"
)

const (
	testSecret   = "cron-secret"
	testPassword = "s3cret-pass"
	frontendURL  = "http://front.test"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, email mailer.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

type fakeFiles struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: map[string]string{}}
}

func (f *fakeFiles) Put(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = contentType
	return "https://files.test/" + key, nil
}

func (f *fakeFiles) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeGoogle struct {
	identity *oauth.Identity
	err      error
}

func (g *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.test/auth?state=" + state
}

func (g *fakeGoogle) Exchange(_ context.Context, _ string) (*oauth.Identity, error) {
	return g.identity, g.err
}

type envOptions struct {
	cronSecret string
	google     oauth.Provider
	recaptcha  *recaptcha.Verifier
	files      filestore.FileStore
	mailErr    error
	proxies    []string
}

type testEnv struct {
	router *gin.Engine
	mem    *memstore.Store
	mailer *fakeMailer
	queue  *worker.Queue
	enc    *utils.Encryptor
}

func newTestEnv(t *testing.T, opts ...func(*envOptions)) *testEnv {
	t.Helper()
	o := envOptions{cronSecret: testSecret}
	for _, opt := range opts {
		opt(&o)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.Discard()
	mem := memstore.New()
	m := metrics.New()
	sessions := session.NewStore(rdb, "test-session-secret", 24*time.Hour)
	cookie := middleware.SessionCookie{Name: "session.sid", TTL: sessions.TTL()}

	enc, err := utils.NewEncryptor("test-encryption-secret")
	require.NoError(t, err)

	queue := worker.NewQueue(1, 16, 5*time.Second, log, m)
	t.Cleanup(func() { _ = queue.Shutdown(time.Second) })

	fm := &fakeMailer{err: o.mailErr}
	agg := aggregator.New(mem, mem, log, aggregator.WithRecorder(m), aggregator.WithClock(func() time.Time { return testNow }))
	composer := mailer.Composer{SiteName: "Site", SiteURL: "https://site.test", SenderEmail: "contact@site.test", AdminEmail: "admin@site.test"}

	router := NewRouter(Dependencies{
		Log:            log,
		Metrics:        m,
		Redis:          rdb,
		Sessions:       sessions,
		Cookie:         cookie,
		AllowedOrigins: []string{"http://front.test"},
		TrustedProxies: o.proxies,
		CronSecret:     o.cronSecret,
		GlobalLimit:    middleware.RateLimitConfig{Limit: 1000, Window: time.Hour, KeyPrefix: "rl:global:", Message: "Too many requests"},
		LoginLimit:     middleware.RateLimitConfig{Limit: 500, Window: 15 * time.Minute, KeyPrefix: "rl:login:", Message: "Too many login attempts"},
		Analytics:      NewAnalyticsHandlers(mem, mem, agg, m, "test-salt", log),
		Auth:           NewAuthHandlers(mem, sessions, cookie, o.google, frontendURL, log),
		Contact:        NewContactHandlers(fm, composer, o.recaptcha, queue, enc, mem, log),
		Messages:       NewMessageHandlers(mem, enc, log),
		CV:             NewCVHandlers(mem, o.files, "cv", log),
		Health:         NewHealthHandlers(map[string]Pinger{}, log),
	})

	return &testEnv{router: router, mem: mem, mailer: fm, queue: queue, enc: enc}
}

func (e *testEnv) do(method, path string, body io.Reader, contentType string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "handlers-test")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path string, payload any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	return e.do(method, path, body, "application/json", cookies...)
}

func (e *testEnv) createUser(t *testing.T, email, password string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Email: email, AuthMethod: models.AuthMethodEmail, Role: role}
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		u.HashedPassword = hashed
	} else {
		u.AuthMethod = models.AuthMethodGoogle
	}
	require.NoError(t, e.mem.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	w := e.doJSON(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := findCookie(w, "session.sid")
	require.NotNil(t, c)
	return c
}

func (e *testEnv) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	e.createUser(t, "admin@example.com", testPassword, models.RoleAdmin)
	return e.login(t, "admin@example.com", testPassword)
}

// findCookie returns the last Set-Cookie for name, which is what a browser keeps.
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santrack/dashboard/internal/config"
	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/ids"
	"santrack/dashboard/internal/models"
	"santrack/dashboard/internal/security"
	"santrack/dashboard/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	mu      sync.Mutex
	ensured []string
	states  map[string]session.State
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{states: map[string]session.State{}}
}

func (f *fakeSessions) Ensure(_ context.Context, clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, clientID)
}

func (f *fakeSessions) Current(clientID string) session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[clientID]
}

var testSessionConfig = config.SessionConfig{
	CookieName:   "santrack_client",
	CookieSecret: "test-secret",
	TTL:          time.Hour,
}

func newRouter(sessions *fakeSessions, route guard.Route) *gin.Engine {
	g := guard.New("/login", "/unauthorized", guard.DefaultLanding())
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.Nop()), Recovery(zerolog.Nop()), ClientSession(testSessionConfig, sessions, zerolog.Nop()))
	r.GET(route.Path, RequireRoute(g, route, sessions), func(c *gin.Context) {
		state := SessionState(c, sessions)
		user, _ := state.User()
		c.JSON(http.StatusOK, gin.H{"client": ClientID(c), "role": user.Role})
	})
	return r
}

func clientCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == testSessionConfig.CookieName {
			return cookie
		}
	}
	t.Fatal("client cookie not set")
	return nil
}

func TestClientSessionIssuesSignedCookie(t *testing.T) {
	sessions := newFakeSessions()
	r := newRouter(sessions, guard.Route{Path: "/"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := clientCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	clientID, ok := security.VerifyClientID(testSessionConfig.CookieSecret, cookie.Value)
	require.True(t, ok)
	assert.True(t, ids.Valid(clientID))
	assert.Equal(t, []string{clientID}, sessions.ensured)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestClientSessionKeepsValidCookie(t *testing.T) {
	sessions := newFakeSessions()
	r := newRouter(sessions, guard.Route{Path: "/"})
	clientID := ids.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testSessionConfig.CookieName, Value: security.SignClientID(testSessionConfig.CookieSecret, clientID)})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), clientID)
	assert.Equal(t, []string{clientID}, sessions.ensured)
}

func TestClientSessionReplacesForgedCookie(t *testing.T) {
	sessions := newFakeSessions()
	r := newRouter(sessions, guard.Route{Path: "/"})
	victim := ids.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testSessionConfig.CookieName, Value: security.SignClientID("other-secret", victim)})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Len(t, sessions.ensured, 1)
	assert.NotEqual(t, victim, sessions.ensured[0])
}

func requestAs(t *testing.T, r *gin.Engine, sessions *fakeSessions, state session.State, target string) *httptest.ResponseRecorder {
	t.Helper()
	clientID := ids.New()
	sessions.mu.Lock()
	sessions.states[clientID] = state
	sessions.mu.Unlock()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: testSessionConfig.CookieName, Value: security.SignClientID(testSessionConfig.CookieSecret, clientID)})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireRouteOutcomes(t *testing.T) {
	route := guard.Route{Name: "users", Path: "/users", RequireAuth: true, Roles: []models.UserRole{models.UserRoleAdmin}}
	admin := &models.Session{Token: "tok", User: models.User{ID: "1", Role: models.UserRoleAdmin}}
	inspector := &models.Session{Token: "tok", User: models.User{ID: "2", Role: models.UserRoleInspector}}

	cases := []struct {
		name     string
		state    session.State
		status   int
		location string
	}{
		{name: "loading", state: session.State{Pending: true}, status: http.StatusAccepted},
		{name: "anonymous", state: session.State{}, status: http.StatusSeeOther, location: "/login?from=%2Fusers%3Fpage%3D2"},
		{name: "wrong role", state: session.State{Session: inspector}, status: http.StatusSeeOther, location: "/inspector/dashboard"},
		{name: "admitted", state: session.State{Session: admin}, status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := newFakeSessions()
			rec := requestAs(t, newRouter(sessions, route), sessions, tc.state, "/users?page=2")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.location, rec.Header().Get("Location"))
			if tc.status == http.StatusAccepted {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
				assert.JSONEq(t, `{"status":"loading"}`, rec.Body.String())
			}
			if tc.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"role":"admin"`)
			}
		})
	}
}

func TestRecoveryAnswers500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
}

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.NotEqual(t, strings.Repeat("x", maxRequestIDLen+1), rec.Body.String())
}

func TestCORSOnlyGrantsConfiguredOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://dash.santrack.test"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://dash.santrack.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.santrack.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

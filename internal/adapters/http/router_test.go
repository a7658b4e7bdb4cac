package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dispatch/internal/adapters/signal"
	"github.com/dkeye/Dispatch/internal/app"
	"github.com/dkeye/Dispatch/internal/app/orch"
	"github.com/dkeye/Dispatch/internal/config"
	rest "github.com/dkeye/Dispatch/internal/transport/http"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Mode:    "test",
		Secret:  "cookie-secret",
		Auth:    config.AuthConfig{Enabled: true, Secret: testSecret, TokenParam: "token"},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := app.NewRegistry()
	hub := orch.New(reg, app.NewCalls(), nil, orch.Config{})
	ctl := signal.NewSignalWSController(hub, signal.Options{})
	ice, err := cfg.ICEServers()
	require.NoError(t, err)
	return SetupRouter(context.Background(), cfg, ctl, &rest.Handlers{Presence: reg, ICE: ice})
}

func mint(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParseSubject(t *testing.T) {
	sub, err := ParseSubject(mint(t, testSecret, "alice"), []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	_, err = ParseSubject(mint(t, "other", "alice"), []byte(testSecret))
	assert.Error(t, err)

	_, err = ParseSubject(mint(t, testSecret, ""), []byte(testSecret))
	assert.ErrorIs(t, err, ErrNoSubject)

	_, err = ParseSubject("garbage", []byte(testSecret))
	assert.Error(t, err)
}

func TestSignalRouteRequiresToken(t *testing.T) {
	r := newRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ws/signal", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ws/signal?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenAuthMiddlewareSetsSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", TokenAuthMiddleware([]byte(testSecret), "token"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(signal.AuthSubjectKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, testSecret, "bob"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())
}

func TestClientTokenCookie(t *testing.T) {
	r := newRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "DispatchSessions", cookies[0].Name)
}

func TestRestRoutes(t *testing.T) {
	r := newRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/online", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var online rest.OnlineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &online))
	assert.Equal(t, 0, online.Count)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ice-servers", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stun:stun.l.google.com:19302")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dispatch_ws_connections_active")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	r := newRouter(t, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

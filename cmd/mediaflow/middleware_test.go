package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/internal/ctxkeys"
	"github.com/BaSui01/mediaflow/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders()(okHandler), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(Chain(okHandler, mark("a"), mark("b"), mark("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-ID"), "req-"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), seen)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "client-7")
	w = serve(h, r)
	assert.Equal(t, "client-7", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "client-7", seen)
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		header     string
		query      string
		allowQuery bool
		wantStatus int
	}{
		{"valid header", "/api/v1/tasks", "k1", "", false, http.StatusOK},
		{"second key", "/api/v1/tasks", "k2", "", false, http.StatusOK},
		{"missing", "/api/v1/tasks", "", "", false, http.StatusUnauthorized},
		{"wrong", "/api/v1/tasks", "nope", "", false, http.StatusUnauthorized},
		{"query disallowed", "/api/v1/tasks", "", "k1", false, http.StatusUnauthorized},
		{"query allowed", "/api/v1/tasks/t1/events", "", "k1", true, http.StatusOK},
		{"skip path", "/health", "", "", false, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := APIKeyAuth([]string{"k1", "k2"}, skipAuthPaths, tt.allowQuery, zap.NewNop())(okHandler)
			target := tt.path
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := serve(h, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler)

	req := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		return serve(h, r).Code
	}

	assert.Equal(t, http.StatusOK, req("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, req("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, req("10.0.0.2:1000"), "limits are per IP")
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://studio.example.com"})(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	r.Header.Set("Origin", "https://studio.example.com")
	w := serve(h, r)
	assert.Equal(t, "https://studio.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/assets", nil)
	r.Header.Set("Origin", "https://studio.example.com")
	assert.Equal(t, http.StatusNoContent, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/assets", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = serve(h, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(CORS(nil)(okHandler), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code, "same-origin requests pass through")
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "test-secret", Issuer: "mediaflow", Audience: "api"}
	var subject string
	h := JWTAuth(cfg, skipAuthPaths, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
	}))

	valid := jwt.MapClaims{
		"sub": "user-1", "iss": "mediaflow", "aud": "api",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	expired := jwt.MapClaims{
		"sub": "user-1", "iss": "mediaflow", "aud": "api",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	wrongIssuer := jwt.MapClaims{
		"sub": "user-1", "iss": "other", "aud": "api",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	noExpiry := jwt.MapClaims{"sub": "user-1", "iss": "mediaflow", "aud": "api"}

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
	}{
		{"valid", "/api/v1/tasks", "Bearer " + signHS256(t, "test-secret", valid), http.StatusOK},
		{"expired", "/api/v1/tasks", "Bearer " + signHS256(t, "test-secret", expired), http.StatusUnauthorized},
		{"wrong secret", "/api/v1/tasks", "Bearer " + signHS256(t, "other", valid), http.StatusUnauthorized},
		{"wrong issuer", "/api/v1/tasks", "Bearer " + signHS256(t, "test-secret", wrongIssuer), http.StatusUnauthorized},
		{"no expiry", "/api/v1/tasks", "Bearer " + signHS256(t, "test-secret", noExpiry), http.StatusUnauthorized},
		{"missing header", "/api/v1/tasks", "", http.StatusUnauthorized},
		{"not bearer", "/api/v1/tasks", "Basic abc", http.StatusUnauthorized},
		{"skip path", "/ready", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := serve(h, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.name == "valid" {
				assert.Equal(t, "user-1", subject)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/health", "/health"},
		{"/api/v1/generations", "/api/v1/generations"},
		{"/api/v1/tasks/3f2a9c1e-8b7d-4c6a-9e5f-0123456789ab", "/api/v1/tasks/:id"},
		{"/api/v1/tasks/3f2a9c1e-8b7d-4c6a-9e5f-0123456789ab/events", "/api/v1/tasks/:id/events"},
		{"/api/v1/assets/suno_20250309_140507/file", "/api/v1/assets/:id/file"},
		{"/api/v1/assets/assembly_20250309_140507_2", "/api/v1/assets/:id"},
		{"/api/v1/assets/assembly_20250309_140507_a1b2c3d4/file", "/api/v1/assets/:id/file"},
		{"/api/v1/unknown/route", "/api/v1/unknown/route"},
		{"/api/v1/items/12345", "/api/v1/items/:id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

// counterValue 从默认 registry 读取带指定标签的计数
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	collector := metrics.NewCollector("mwtest", zap.NewNop())

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(collector))
	r.Get("/api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/a", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/b", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/nothing/12345", nil))

	assert.Equal(t, 2.0, counterValue(t, "mwtest_http_requests_total",
		map[string]string{"method": "GET", "path": "/api/v1/tasks/{id}", "status": "2xx"}))
	assert.Equal(t, 1.0, counterValue(t, "mwtest_http_requests_total",
		map[string]string{"path": "/api/v1/nothing/:id", "status": "4xx"}))
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t,
		[]string{"studio.example.com", "localhost:3000", "*.example.org"},
		originHosts([]string{"https://studio.example.com", "http://localhost:3000", "*.example.org"}))
	assert.Empty(t, originHosts(nil))
}

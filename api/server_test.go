package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
)

func newRouter(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()
	m := ledger.NewManager(memory.New(), ledger.WithClock(func() time.Time { return testNow }))
	require.NoError(t, m.Bootstrap(context.Background()))
	opts.Logger = zerolog.Nop()
	return NewRouter(NewHandler(m), opts)
}

func get(h http.Handler, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_SecurityHeaders(t *testing.T) {
	r := newRouter(t, RouterOptions{})

	rec := get(r, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouter_ProductionRedirectsToHTTPS(t *testing.T) {
	r := newRouter(t, RouterOptions{Production: true})

	rec := get(r, "/api/health")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://")

	rec = get(r, "/api/health", "X-Forwarded-Proto", "https")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	// GIVEN: Two requests per minute per client
	r := newRouter(t, RouterOptions{RateLimitPerMinute: 2})

	// WHEN: A third request arrives within the minute
	assert.Equal(t, http.StatusOK, get(r, "/api/health").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/health").Code)
	rec := get(r, "/api/health")

	// THEN: It is throttled
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newRouter(t, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", ActorHeader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	r := newRouter(t, RouterOptions{})

	rec := get(r, "/api/nothing-here")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestActorMiddleware(t *testing.T) {
	var got string
	h := actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ledger.ActorFromContext(r.Context())
	}))

	get(h, "/", ActorHeader, "  carla ")
	assert.Equal(t, "carla", got)

	get(h, "/")
	assert.Equal(t, ledger.SystemActor, got)
}

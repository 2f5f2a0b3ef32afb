package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/platform/middleware"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestAllow_SlidingWindow(t *testing.T) {
	c := newClock()
	l := New(3, time.Minute, WithNow(c.now))

	for i := range 3 {
		res := l.Allow("clerk-1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res := l.Allow("clerk-1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60, res.RetryAfter)

	// another actor has its own window
	assert.True(t, l.Allow("clerk-2").Allowed)

	c.t = c.t.Add(61 * time.Second)
	assert.True(t, l.Allow("clerk-1").Allowed)
}

func TestAllow_RetryAfterShrinks(t *testing.T) {
	c := newClock()
	l := New(1, time.Minute, WithNow(c.now))

	require.True(t, l.Allow("a").Allowed)
	c.t = c.t.Add(45 * time.Second)
	res := l.Allow("a")
	require.False(t, res.Allowed)
	assert.Equal(t, 15, res.RetryAfter)
}

func TestPrune_DropsIdleKeys(t *testing.T) {
	c := newClock()
	l := New(5, time.Minute, WithNow(c.now))
	l.Allow("a")
	l.Allow("b")

	assert.Equal(t, 0, l.Prune(c.t))

	c.t = c.t.Add(2 * time.Minute)
	l.Allow("b")
	assert.Equal(t, 1, l.Prune(c.t))
}

func TestPerActor(t *testing.T) {
	c := newClock()
	l := New(1, time.Minute, WithNow(c.now))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := PerActor(l, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/voters/x", nil)
		req = req.WithContext(middleware.WithActor(req.Context(), middleware.Actor{ID: actor, Role: "clerk"}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	first := serve("clerk-9")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := serve("clerk-9")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusNoContent, serve("clerk-10").Code)
}

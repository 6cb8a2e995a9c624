package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_Allow_burst(t *testing.T) {
	s := NewStore(1, 2)

	assert.True(t, s.Allow("a"))
	assert.True(t, s.Allow("a"))
	assert.False(t, s.Allow("a"))
	assert.True(t, s.Allow("b"), "keys are limited independently")
}

func TestStore_Cleanup(t *testing.T) {
	s := NewStore(1, 1, WithIdleTTL(time.Nanosecond))
	s.Allow("a")
	time.Sleep(time.Millisecond)

	s.Cleanup()

	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	assert.Zero(t, n)
	assert.True(t, s.Allow("a"), "a dropped key starts with a full bucket")
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", ClientKey(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientKey(r))

	r.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientKey(r))
}

func TestMiddleware(t *testing.T) {
	s := NewStore(1, 1)
	h := Middleware(s, 2*time.Second)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/containers", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/containers", nil))

	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(update).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_counters(t *testing.T) {
	m := New()
	m.IncAllocation("video", "granted")
	m.IncAllocation("video", "denied")
	m.IncEviction("audio")
	m.IncRelease("video")
	m.IncBless()

	body := scrape(t, m, nil)

	assert.Contains(t, body, `mediapool_allocations_total{outcome="granted",type="video"} 1`)
	assert.Contains(t, body, `mediapool_allocations_total{outcome="denied",type="video"} 1`)
	assert.Contains(t, body, `mediapool_evictions_total{type="audio"} 1`)
	assert.Contains(t, body, `mediapool_releases_total{type="video"} 1`)
	assert.Contains(t, body, "mediapool_bless_total 1")
}

func TestMetrics_Handler_refreshesGauges(t *testing.T) {
	m := New()
	calls := 0

	body := scrape(t, m, func() {
		calls++
		m.SetContainers(3)
		m.SetSlots("video", 2, 6)
	})

	assert.Equal(t, 1, calls)
	assert.Contains(t, body, "mediapool_containers 3")
	assert.Contains(t, body, `mediapool_slots{state="allocated",type="video"} 2`)
	assert.Contains(t, body, `mediapool_slots{state="free",type="video"} 6`)
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	mw := RequestMiddleware(m, "/metrics")
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	for _, path := range []string{"/ok", "/missing", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m, nil)
	assert.Contains(t, body, "mediapool_requests_total 2")
	assert.Contains(t, body, "mediapool_errors_total 1")
}

package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

func TestMetrics_ObserveEvent(t *testing.T) {
	m := New("test")

	m.ObserveEvent(&model.CommitEvent{TimeUS: 7, Commit: model.Commit{Operation: model.OpCreate, Collection: "c"}})
	m.ObserveEvent(&model.IdentityEvent{TimeUS: 9})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("commit", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("identity", "")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.Cursor))
}

func TestMetrics_ObserveStateIsOneHot(t *testing.T) {
	m := New("test")

	m.ObserveState(model.ConsumerState{Status: model.StatusConnected, ReconnectAttempts: 2})
	m.ObserveState(model.ConsumerState{Status: model.StatusPaused})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Status.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("paused")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReconnectAttempts))
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := New("test")

	h := m.Middleware(func(*http.Request) string { return "/x" })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `jetstream_http_requests_total{endpoint="/x",method="GET",status="418"} 1`)
	assert.Contains(t, string(body), `jetstream_build_info{version="test"} 1`)
}

package telemetry

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

const namespace = "jetstream"

var statuses = []model.Status{
	model.StatusDisconnected,
	model.StatusConnecting,
	model.StatusConnected,
	model.StatusPaused,
}

// Metrics holds the Prometheus collectors for the explorer.
type Metrics struct {
	registry *prometheus.Registry

	// Feed metrics
	Events            *prometheus.CounterVec
	ParseErrors       prometheus.Counter
	TransportErrors   prometheus.Counter
	Status            *prometheus.GaugeVec
	ReconnectAttempts prometheus.Gauge
	Cursor            prometheus.Gauge
	Rates             *prometheus.GaugeVec
	BufferedEvents    prometheus.Gauge
	DispatchDropped   prometheus.Counter

	// Inspector HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry, so several instances
// can coexist in one process.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events processed, by kind and commit operation",
		}, []string{"kind", "operation"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Frames that failed to decode",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Connection level failures",
		}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current consumer status, 0 otherwise",
		}, []string{"status"}),
		ReconnectAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts",
			Help:      "Consecutive reconnect attempts since the last successful open",
		}),
		Cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor_time_us",
			Help:      "time_us of the last processed event",
		}),
		Rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_per_second",
			Help:      "Rolling event rates",
		}, []string{"series"}),
		BufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_events",
			Help:      "Events currently retained in the buffer",
		}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Events not handed to live viewers or the forwarder because the bus queue was full",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		info,
		m.Events, m.ParseErrors, m.TransportErrors, m.Status,
		m.ReconnectAttempts, m.Cursor, m.Rates, m.BufferedEvents, m.DispatchDropped,
		m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveEvent(ev model.Event) {
	op := model.Visit(ev,
		func(e *model.CommitEvent) string { return string(e.Commit.Operation) },
		func(*model.IdentityEvent) string { return "" },
		func(*model.AccountEvent) string { return "" },
	)
	m.Events.WithLabelValues(string(ev.GetKind()), op).Inc()
	m.Cursor.Set(float64(ev.GetTimeUS()))
}

func (m *Metrics) ObserveState(st model.ConsumerState) {
	for _, s := range statuses {
		v := 0.0
		if s == st.Status {
			v = 1
		}
		m.Status.WithLabelValues(string(s)).Set(v)
	}
	m.ReconnectAttempts.Set(float64(st.ReconnectAttempts))
}

func (m *Metrics) ObserveSnapshot(s metrics.Snapshot) {
	m.Rates.WithLabelValues("total").Set(s.MessagesPerSecond)
	m.Rates.WithLabelValues("create").Set(s.CreatePerSecond)
	m.Rates.WithLabelValues("update").Set(s.UpdatePerSecond)
	m.Rates.WithLabelValues("delete").Set(s.DeletePerSecond)
}

// Middleware records request count and latency. route resolves the
// endpoint label, e.g. the router's matched pattern.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			endpoint := route(r)
			if endpoint == "" {
				endpoint = "unknown"
			}
			m.httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
			m.httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack keeps websocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// Package metrics exposes the /metrics endpoint, mirroring
// original_source/prometheus.rs's generate_metrics gauge set over
// github.com/prometheus/client_golang.
package metrics

import (
	"crypto/subtle"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source supplies the live values the exported gauges report. Implemented
// by *session.Engine; kept as an interface here so this package never
// imports internal/session.
type Source interface {
	ActiveSessionCount() int
	TotalPoints() int
	PublicTagCount() int
	PrivateTagCount() int
}

// Metrics owns the Prometheus registry and the gauges fed from a Source on
// every scrape.
type Metrics struct {
	source Source
	start  func() float64

	registry *prometheus.Registry

	uptime       prometheus.GaugeFunc
	sessions     prometheus.GaugeFunc
	streams      prometheus.Gauge
	points       prometheus.GaugeFunc
	publicTags   prometheus.GaugeFunc
	privateTags  prometheus.GaugeFunc
}

// New builds a Metrics registry wired to source. uptimeSeconds is called on
// every scrape to report process uptime. version is embedded in the
// ducktracker_info build-info gauge.
func New(source Source, uptimeSeconds func() float64, version string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		source:   source,
		start:    uptimeSeconds,
		registry: registry,
	}

	m.uptime = promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ducktracker_uptime_seconds",
		Help: "Time since the server process started.",
	}, m.start)

	m.sessions = promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ducktracker_active_sessions",
		Help: "Number of currently live tracking sessions.",
	}, func() float64 { return float64(m.source.ActiveSessionCount()) })

	m.streams = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "ducktracker_open_streams",
		Help: "Number of currently open /api/stream SSE connections.",
	})

	m.points = promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ducktracker_total_points",
		Help: "Combined size of every session's in-memory point ring.",
	}, func() float64 { return float64(m.source.TotalPoints()) })

	m.publicTags = promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ducktracker_public_tags",
		Help: "Number of distinct public tags currently in use.",
	}, func() float64 { return float64(m.source.PublicTagCount()) })

	m.privateTags = promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ducktracker_private_tags",
		Help: "Number of distinct private-only tags currently in use.",
	}, func() float64 { return float64(m.source.PrivateTagCount()) })

	info := promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name:        "ducktracker_info",
		Help:        "Build information, value is always 1.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	info.Set(1)

	return m
}

// StreamOpened increments the open-stream gauge. Call when a /api/stream
// connection is accepted.
func (m *Metrics) StreamOpened() { m.streams.Inc() }

// StreamClosed decrements the open-stream gauge. Call when a /api/stream
// connection ends, in the same defer as the handler's cleanup.
func (m *Metrics) StreamClosed() { m.streams.Dec() }

// Handler returns the /metrics HTTP handler, guarded by HTTP Basic auth
// when user is non-empty (per §6). An empty user disables auth entirely,
// matching an unset --prometheus-user.
func (m *Metrics) Handler(user, password string) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	if user == "" {
		return inner
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, ok := r.BasicAuth()
		if !ok || !constantTimeEqual(gotUser, user) || !constantTimeEqual(gotPass, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ducktracker"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Package httpapi implements the six HTTP endpoints of §6, generalizing
// the teacher's internal/ws/server.go (http.ServeMux, per-route
// authorize-style guard, constructor wiring config + store) from
// websocket upgrade to the SSE + form/JSON surface this broker exposes.
package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ducktracker/server/internal/metrics"
	"github.com/ducktracker/server/internal/session"
)

// Server wires the session Engine and metrics registry into the route
// table described in §6.
type Server struct {
	engine  *session.Engine
	metrics *metrics.Metrics

	scheme                string
	serverName            string
	defaultExpireDuration time.Duration
	updateInterval        time.Duration
	version               string

	prometheusUser     string
	prometheusPassword string
}

// NewServer builds a Server. scheme/serverName are used to construct
// share links in the create.php response; defaultExpireDuration is the
// session lifetime used when a create request omits the "dur" field.
func NewServer(engine *session.Engine, m *metrics.Metrics, scheme, serverName string, defaultExpireDuration, updateInterval time.Duration, version, prometheusUser, prometheusPassword string) *Server {
	return &Server{
		engine:                engine,
		metrics:               m,
		scheme:                scheme,
		serverName:            serverName,
		defaultExpireDuration: defaultExpireDuration,
		updateInterval:        updateInterval,
		version:               version,
		prometheusUser:        prometheusUser,
		prometheusPassword:    prometheusPassword,
	}
}

// SetupRoutes registers every route of §6 on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/create.php", s.handleCreate)
	mux.HandleFunc("/api/stop.php", s.handleStop)
	mux.HandleFunc("/api/post.php", s.handlePost)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.Handle("/metrics", s.metrics.Handler(s.prometheusUser, s.prometheusPassword))
}

// ListenAndServe starts the HTTP server on address:port, in the shape of
// the teacher's own ws.ListenAndServe helper.
func ListenAndServe(address string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", address, port)
	log.Printf("httpapi: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

package httpapi

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ducktracker/server/internal/auth"
	"github.com/ducktracker/server/internal/broadcast"
	"github.com/ducktracker/server/internal/metrics"
	"github.com/ducktracker/server/internal/session"
)

func newTestServer(t *testing.T) (*Server, *session.Engine) {
	t.Helper()
	b := broadcast.NewBroadcaster(8)
	authn := auth.NewAuthenticator(auth.Credentials{"alice": "s3cret"})
	cfg := session.Config{
		DefaultPublicTag: "duck",
		DefaultTag:       "duck",
		GlobalMaxPoints:  1000,
		DefaultPoints:    200,
		UpdateInterval:   50 * time.Millisecond,
		TokenSetCapacity: 1000,
	}
	engine := session.NewEngine(cfg, nil, b, authn)
	m := metrics.New(engine, func() float64 { return 0 }, "test")
	srv := NewServer(engine, m, "http", "ducktracker.example", time.Minute, 50*time.Millisecond, "test", "", "")
	return srv, engine
}

func formBody(values url.Values) *strings.Reader {
	return strings.NewReader(values.Encode())
}

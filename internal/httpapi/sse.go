package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ducktracker/server/internal/broadcast"
	"github.com/ducktracker/server/internal/subscriber"
)

type writeFlusher interface {
	http.ResponseWriter
	http.Flusher
}

// keepAliveInterval is the SSE comment cadence, independent of the
// broker's heartbeat/coalescer window per §6.
const keepAliveInterval = 5 * time.Second

// handleStream implements GET /api/stream: query `tags?,token` → a
// text/event-stream of JSON-encoded Updates. Grounded on the teacher's
// websocket upgrade handler for the per-connection lifecycle shape,
// generalized to SSE the way other_examples' SSE handlers do (write +
// Flush per event, a keep-alive comment on its own ticker).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	wf, ok := w.(writeFlusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	token := r.URL.Query().Get("token")
	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	pipeline, initial, err := subscriber.New(s.engine, token, tags, s.updateInterval)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	defer pipeline.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	if !writeEvent(wf, initial) {
		return
	}

	ctx := r.Context()
	type result struct {
		update broadcast.Update
		err    error
	}
	results := make(chan result)
	go func() {
		for {
			out, err := pipeline.Next(ctx)
			select {
			case results <- result{out, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				if _, isLag := err.(*subscriber.LagError); !isLag {
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-results:
			if res.err != nil {
				if lagErr, isLag := res.err.(*subscriber.LagError); isLag {
					log.Printf("httpapi: stream lagged, %d update(s) dropped", lagErr.Count)
					continue
				}
				return
			}
			if !writeEvent(wf, res.update) {
				return
			}

		case <-ticker.C:
			if !writeComment(wf, "keep-alive") {
				return
			}
		}
	}
}

func writeEvent(wf writeFlusher, upd broadcast.Update) bool {
	body, err := json.Marshal(upd)
	if err != nil {
		log.Printf("httpapi: failed to encode update: %v", err)
		return false
	}
	if _, err := fmt.Fprintf(wf, "data: %s\n\n", body); err != nil {
		return false
	}
	wf.Flush()
	return true
}

func writeComment(wf writeFlusher, text string) bool {
	if _, err := fmt.Fprintf(wf, ": %s\n\n", text); err != nil {
		return false
	}
	wf.Flush()
	return true
}

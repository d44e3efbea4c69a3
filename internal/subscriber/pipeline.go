// Package subscriber implements the per-subscriber pipeline of §4.8:
// construction (token check, effective-tag computation, snapshot-under-
// lock, subscribe), the live filter+rewrite step, and the windowed
// coalescer. Grounded on original_source/state.rs's Updates::
// initial_update/updates() filter-map chain for the filtering semantics.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ducktracker/server/internal/broadcast"
	"github.com/ducktracker/server/internal/session"
)

// ErrInvalidToken is returned by New when the supplied token is not
// currently registered.
var ErrInvalidToken = errors.New("subscriber: invalid token")

// LagError is surfaced when this subscriber could not keep up with the
// broadcast channel. The stream remains open; the client is expected to
// reconnect and re-snapshot.
type LagError struct {
	Count int64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber: lagged, %d update(s) dropped", e.Count)
}

// Pipeline is one subscriber's end-to-end view of the broadcast channel.
// Not safe for concurrent use: Next must be called from a single
// goroutine per Pipeline, matching one SSE connection.
type Pipeline struct {
	engine        *session.Engine
	sub           *broadcast.Subscription
	tags          map[string]struct{}
	autoSubscribe bool
	coalescer     *coalescer
	pendingLag    *LagError
}

// New performs construction steps 1-4 of §4.8: rejects unknown tokens,
// computes the effective tag filter, builds the initial snapshot under
// the engine's lock, and subscribes to the broadcast channel. window is
// the coalescer's W, normally the configured update interval.
func New(engine *session.Engine, token string, requestedTags []string, window time.Duration) (*Pipeline, broadcast.Update, error) {
	if !engine.HasToken(token) {
		return nil, broadcast.Update{}, ErrInvalidToken
	}

	sub, initial, tags, auto := engine.NewSubscription(requestedTags)
	// Restrict each snapshot fetch's tags to the effective filter, the same
	// rewrite filterAndRewrite applies to live AddFetch changes.
	for i, c := range initial.Changes {
		if c.Kind != broadcast.ChangeAddFetch {
			continue
		}
		for id, f := range c.Fetches {
			f.Tags = intersectNames(f.Tags, tags)
			c.Fetches[id] = f
		}
		initial.Changes[i] = c
	}
	p := &Pipeline{
		engine:        engine,
		sub:           sub,
		tags:          tags,
		autoSubscribe: auto,
		coalescer:     newCoalescer(window),
	}
	return p, initial, nil
}

// Close releases the underlying broadcast subscription. Idempotent.
func (p *Pipeline) Close() {
	p.engine.Unsubscribe(p.sub)
}

// Next blocks until the next outbound Update is ready: it receives live
// broadcast envelopes, merges newly announced public tags for
// auto-subscribed subscribers, applies the tag filter+rewrite, and feeds
// the result through the coalescer, returning as soon as a flush occurs.
//
// On a Lagged error it first returns any flushed accumulator (if one was
// pending), then returns the LagError itself on the following call —
// "one flushed update, then a lag indication" per §8's scenario S6.
func (p *Pipeline) Next(ctx context.Context) (broadcast.Update, error) {
	if p.pendingLag != nil {
		err := p.pendingLag
		p.pendingLag = nil
		return broadcast.Update{}, err
	}

	for {
		env, err := p.sub.Recv(ctx)
		if err != nil {
			return broadcast.Update{}, err
		}

		if env.Lagged {
			flushed, ok := p.coalescer.flushForLag()
			p.pendingLag = &LagError{Count: env.LagCount}
			if ok {
				return flushed, nil
			}
			err := p.pendingLag
			p.pendingLag = nil
			return broadcast.Update{}, err
		}

		if p.autoSubscribe {
			p.mergeNewPublicTags(env)
		}

		filtered, keep := p.filterAndRewrite(env)
		if !keep {
			continue
		}

		if out, ready := p.coalescer.ingest(filtered, env.Context.IsHeartbeat); ready {
			return out, nil
		}
	}
}

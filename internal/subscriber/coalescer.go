package subscriber

import (
	"time"

	"github.com/ducktracker/server/internal/broadcast"
)

// coalescer implements §4.8's windowed coalescer as a pure stream
// transform: flush decisions depend only on incoming events' server
// times, never on a wall-clock timer of their own (liveness is guaranteed
// by heartbeats, which tick at the same window W).
//
// Not safe for concurrent use; one coalescer exists per Pipeline and is
// driven serially by Pipeline.Next.
type coalescer struct {
	window time.Duration
	tPrev  *uint64
	accum  *broadcast.Update
}

func newCoalescer(window time.Duration) *coalescer {
	return &coalescer{window: window}
}

// ingest processes one filtered update (already past the subscriber's tag
// filter). Real (non-heartbeat) updates are merged into the in-flight
// accumulator; heartbeats are never merged but can still trigger a flush
// of whatever is pending, acting purely as a flush catalyst per §4.10.
//
// Returns (output, true) when a flush occurs, or (zero value, false) when
// the event was absorbed without producing output yet.
func (c *coalescer) ingest(u broadcast.Update, isHeartbeat bool) (broadcast.Update, bool) {
	t := u.Meta.ServerTimeMicros
	windowMicros := uint64(c.window.Microseconds())

	withinWindow := c.tPrev != nil && diffMicros(t, *c.tPrev) < windowMicros

	if withinWindow {
		if !isHeartbeat {
			c.mergeReal(u)
		}
		return broadcast.Update{}, false
	}

	var out broadcast.Update
	flushed := false
	if c.accum != nil {
		out = *c.accum
		out.Meta.ServerTimeMicros = uint64(time.Now().UnixMicro())
		flushed = true
	}

	if isHeartbeat {
		c.accum = nil
	} else {
		cp := u
		c.accum = &cp
	}
	anchor := t
	c.tPrev = &anchor

	return out, flushed
}

func (c *coalescer) mergeReal(u broadcast.Update) {
	if c.accum == nil {
		cp := u
		c.accum = &cp
		return
	}
	c.accum.Changes = append(c.accum.Changes, u.Changes...)
}

// flushForLag flushes any pending accumulator (stamped "now") and resets
// the coalescer's state entirely, per §4.8's Lagged handling.
func (c *coalescer) flushForLag() (broadcast.Update, bool) {
	var out broadcast.Update
	ok := false
	if c.accum != nil {
		out = *c.accum
		out.Meta.ServerTimeMicros = uint64(time.Now().UnixMicro())
		ok = true
	}
	c.accum = nil
	c.tPrev = nil
	return out, ok
}

func diffMicros(t, prev uint64) uint64 {
	if t < prev {
		return 0
	}
	return t - prev
}

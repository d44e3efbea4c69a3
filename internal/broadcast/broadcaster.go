// Package broadcast implements the lossy fan-out channel that carries
// tagged (Context, Update) pairs from the session store to every connected
// subscriber. Go has no built-in multi-consumer broadcast channel (unlike
// the original's tokio::sync::broadcast), so the idiomatic substitute —
// ported from the teacher's websocket client registry — is one buffered
// channel per subscriber, fanned out under the broadcaster's own lock.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Recv once the subscription has been closed.
var ErrClosed = errors.New("broadcast: subscription closed")

// Envelope is one item delivered to a subscriber: either a normal
// (Context, Update) pair, or a Lagged indication surfaced when this
// subscriber could not keep up and the broadcaster dropped messages on
// its behalf.
type Envelope struct {
	Context  Context
	Update   Update
	Lagged   bool
	LagCount int64
}

// Subscription is a single subscriber's view of the broadcast channel.
// Not safe for concurrent Recv calls from multiple goroutines.
type Subscription struct {
	id      uint64
	ch      chan Envelope
	dropped int64 // atomic
}

// Recv blocks until the next envelope is available, the subscription is
// closed, or ctx is done. If one or more messages were dropped for this
// subscriber since the last Recv, the next Recv call surfaces a Lagged
// envelope before resuming normal delivery — the same "notify, then keep
// going" contract as tokio::sync::broadcast's Lagged error.
func (s *Subscription) Recv(ctx context.Context) (Envelope, error) {
	if n := atomic.SwapInt64(&s.dropped, 0); n > 0 {
		return Envelope{Lagged: true, LagCount: n}, nil
	}
	select {
	case env, ok := <-s.ch:
		if !ok {
			return Envelope{}, ErrClosed
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Broadcaster owns the subscriber registry and fans out Publish calls to
// every current subscriber's buffered channel.
type Broadcaster struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
}

// NewBroadcaster returns a Broadcaster whose per-subscriber channels hold
// bufferSize pending envelopes before the broadcaster starts dropping for
// that subscriber.
func NewBroadcaster(bufferSize int) *Broadcaster {
	return &Broadcaster{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new subscriber and returns its handle. Callers
// must eventually call Unsubscribe to release the registry slot.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id: b.nextID,
		ch: make(chan Envelope, b.bufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub from the registry and closes its channel. Safe
// to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish fans ctx/upd out to every current subscriber. Intended to be
// called while the session store's coarse lock is held, so that updates
// appear on the channel in the same order the mutations that produced
// them were applied. A subscriber whose buffer is full does not block the
// publisher — the message is dropped for that subscriber and its lag
// counter is incremented (lossy backpressure policy).
func (b *Broadcaster) Publish(ctx Context, upd Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- Envelope{Context: ctx, Update: upd}:
		default:
			atomic.AddInt64(&sub.dropped, 1)
		}
	}
}

// SubscriberCount reports the number of currently registered subscribers,
// used by the metrics endpoint's open-stream gauge.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

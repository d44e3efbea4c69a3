// Package expiry implements the two-heap expiration mechanism: a min-heap
// of pending deadlines per kind of expiry (session-expiry, point-expiry),
// and a sleep-or-be-woken worker loop that drains due entries by calling
// back into the owning store under its own lock.
package expiry

import (
	"container/heap"
	"context"
	"time"
)

// Entry is one scheduled expiration: a session id keyed by the absolute
// instant it becomes due.
type Entry struct {
	When      time.Time
	SessionID string
}

// entryHeap implements container/heap.Interface as a min-heap ordered by
// When. Stale entries (session stopped early, point already evicted by
// FIFO) are left in place and discarded lazily at pop time by the caller —
// this heap does not know which entries are stale.
type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].When.Before(h[j].When) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Heap is a min-heap of pending expirations. Not safe for concurrent use;
// callers serialize access with their own lock (the store's single
// coarse-grained lock spanning SessionStore, TagIndex, and both heaps).
type Heap struct {
	h entryHeap
}

// NewHeap returns an empty Heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Push enrolls sessionID to expire at when.
func (h *Heap) Push(when time.Time, sessionID string) {
	heap.Push(&h.h, Entry{When: when, SessionID: sessionID})
}

// Peek returns the earliest entry without removing it.
func (h *Heap) Peek() (Entry, bool) {
	if len(h.h) == 0 {
		return Entry{}, false
	}
	return h.h[0], true
}

// Pop removes and returns the earliest entry.
func (h *Heap) Pop() (Entry, bool) {
	if len(h.h) == 0 {
		return Entry{}, false
	}
	return heap.Pop(&h.h).(Entry), true
}

// Len reports the number of entries currently enrolled, including any
// stale ones not yet discovered by a pop.
func (h *Heap) Len() int {
	return len(h.h)
}

// idleSentinel bounds the worker's sleep when the heap is empty. A later
// Push is noticed at the next Notify, or at the latest when this sleep
// ends.
const idleSentinel = time.Hour

// DrainFunc drains all entries due at or before now from the caller's
// heap(s), acting on each (the session/point removal logic lives in the
// caller, which holds the store's lock for the duration of the call). It
// returns the next pending deadline, or ok=false if nothing remains
// enrolled.
type DrainFunc func(now time.Time) (next time.Time, ok bool)

// Scheduler drives one DrainFunc on a sleep-until-next-deadline loop,
// preemptible by Notify. One Scheduler exists per expiry heap (session and
// point each get their own), following the teacher's own ticker/select
// worker-loop shape.
type Scheduler struct {
	drain  DrainFunc
	notify chan struct{}
}

// NewScheduler returns a Scheduler that calls drain on every wake.
func NewScheduler(drain DrainFunc) *Scheduler {
	return &Scheduler{
		drain:  drain,
		notify: make(chan struct{}, 1),
	}
}

// Notify wakes the scheduler immediately, e.g. after enrolling a new
// entry that might be the new earliest deadline. Non-blocking: if a
// notification is already pending, this is a no-op.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run drains due entries and sleeps until the next deadline (or until
// Notify or ctx cancellation) in a loop, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next, ok := s.drain(time.Now())
		sleep := idleSentinel
		if ok {
			sleep = time.Until(next)
			if sleep < 0 {
				sleep = 0
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.notify:
			timer.Stop()
		}
	}
}

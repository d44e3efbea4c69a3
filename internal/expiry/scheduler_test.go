package expiry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestHeapOrdersByWhen(t *testing.T) {
	h := NewHeap()
	now := time.Now()
	h.Push(now.Add(3*time.Second), "c")
	h.Push(now.Add(1*time.Second), "a")
	h.Push(now.Add(2*time.Second), "b")

	want := []string{"a", "b", "c"}
	for _, id := range want {
		e, ok := h.Pop()
		if !ok || e.SessionID != id {
			t.Fatalf("got %+v ok=%v, want %s", e, ok, id)
		}
	}
	if h.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", h.Len())
	}
}

func TestHeapPeekDoesNotRemove(t *testing.T) {
	h := NewHeap()
	now := time.Now()
	h.Push(now, "x")
	if _, ok := h.Peek(); !ok {
		t.Fatal("expected Peek to find entry")
	}
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (Peek must not remove)", h.Len())
	}
}

func TestSchedulerDrainsAndSleepsUntilNextDeadline(t *testing.T) {
	var mu sync.Mutex
	drained := make(chan string, 10)

	h := NewHeap()
	h.Push(time.Now().Add(10*time.Millisecond), "s1")

	drain := func(now time.Time) (time.Time, bool) {
		mu.Lock()
		defer mu.Unlock()
		for {
			e, ok := h.Peek()
			if !ok || e.When.After(now) {
				break
			}
			h.Pop()
			drained <- e.SessionID
		}
		if e, ok := h.Peek(); ok {
			return e.When, true
		}
		return time.Time{}, false
	}

	sched := NewScheduler(drain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	select {
	case id := <-drained:
		if id != "s1" {
			t.Fatalf("drained %q, want s1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler to drain entry")
	}
}

func TestSchedulerNotifyWakesImmediately(t *testing.T) {
	var mu sync.Mutex
	h := NewHeap()
	drained := make(chan string, 10)

	drain := func(now time.Time) (time.Time, bool) {
		mu.Lock()
		defer mu.Unlock()
		for {
			e, ok := h.Peek()
			if !ok || e.When.After(now) {
				break
			}
			h.Pop()
			drained <- e.SessionID
		}
		if e, ok := h.Peek(); ok {
			return e.When, true
		}
		return time.Time{}, false
	}

	sched := NewScheduler(drain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// Give the scheduler time to enter its idle (1h) sleep, then push a
	// due entry and notify — it should drain well before the sentinel.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	h.Push(time.Now(), "late")
	mu.Unlock()
	sched.Notify()

	select {
	case id := <-drained:
		if id != "late" {
			t.Fatalf("drained %q, want late", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Notify to wake the scheduler")
	}
}

package subscriber

import (
	"context"
	"testing"
	"time"

	"github.com/ducktracker/server/internal/auth"
	"github.com/ducktracker/server/internal/broadcast"
	"github.com/ducktracker/server/internal/session"
	"github.com/ducktracker/server/internal/shareid"
)

func newTestEngine(t *testing.T) *session.Engine {
	t.Helper()
	b := broadcast.NewBroadcaster(8)
	authn := auth.NewAuthenticator(auth.Credentials{"alice": "s3cret"})
	cfg := session.Config{
		DefaultPublicTag: "duck",
		DefaultTag:       "duck",
		GlobalMaxPoints:  1000,
		DefaultPoints:    200,
		UpdateInterval:   100 * time.Millisecond,
		TokenSetCapacity: 1000,
	}
	return session.NewEngine(cfg, nil, b, authn)
}

func TestNewRejectsInvalidToken(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := New(e, "bogus-token", nil, 100*time.Millisecond)
	if err != ErrInvalidToken {
		t.Fatalf("got err=%v, want ErrInvalidToken", err)
	}
}

func TestNewWithValidTokenSucceeds(t *testing.T) {
	e := newTestEngine(t)
	token, ok := e.CreateToken("alice", "s3cret")
	if !ok {
		t.Fatal("expected CreateToken to succeed")
	}
	p, _, err := New(e, token, nil, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()
}

// S3: auto-subscribe picks up newly announced public tags. The
// coalescer only flushes a pending change once a *later* event arrives
// outside its window, so each assertion below is driven by the event
// that follows it, matching §4.8's anchor semantics exercised in
// coalescer_test.go.
func TestScenarioS3AutoSubscribePicksUpNewPublicTag(t *testing.T) {
	const window = 40 * time.Millisecond
	e := newTestEngine(t)
	token, _ := e.CreateToken("alice", "s3cret")

	p, initial, err := New(e, token, nil, window)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	addFetchCount := 0
	for _, c := range initial.Changes {
		if c.Kind == broadcast.ChangeAddFetch {
			addFetchCount++
			if len(c.Public) != 0 {
				t.Fatalf("got initial public=%v, want empty (no sessions yet)", c.Public)
			}
		}
	}
	if addFetchCount != 1 {
		t.Fatalf("got %d AddFetch changes in snapshot, want 1", addFetchCount)
	}

	e.AddSession(session.CreateParams{
		SessionID: "s1",
		Tags:      shareid.TagsAux{{Name: "gamma", Visibility: shareid.Public}},
		ExpiresAt: time.Now().Add(time.Minute),
	})

	time.Sleep(3 * window)
	if err := e.AddLocation(session.LocationParams{
		SessionID: "s1",
		Point:     session.Point{Time: 1},
		Now:       time.Now(),
	}); err != nil {
		t.Fatalf("AddLocation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := p.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	var sawGamma bool
	for _, c := range out.Changes {
		if c.Kind == broadcast.ChangeAddFetch {
			for _, pub := range c.Public {
				if pub == "gamma" {
					sawGamma = true
				}
			}
		}
	}
	if !sawGamma {
		t.Fatalf("got %+v, want the flushed AddFetch.public to contain gamma", out.Changes)
	}

	time.Sleep(3 * window)
	if err := e.AddLocation(session.LocationParams{
		SessionID: "s1",
		Point:     session.Point{Time: 2},
		Now:       time.Now(),
	}); err != nil {
		t.Fatalf("AddLocation failed: %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	out2, err := p.Next(ctx2)
	if err != nil {
		t.Fatalf("Next failed for post-auto-subscribe point: %v", err)
	}
	var sawAdd bool
	for _, c := range out2.Changes {
		if c.Kind == broadcast.ChangeAdd {
			sawAdd = true
		}
	}
	if !sawAdd {
		t.Fatalf("got %+v, want the first post delivered after auto-subscribing to gamma", out2.Changes)
	}
}

func TestPipelineDropsDisjointTagUpdates(t *testing.T) {
	e := newTestEngine(t)
	token, _ := e.CreateToken("alice", "s3cret")

	e.AddSession(session.CreateParams{
		SessionID: "s1",
		Tags:      shareid.TagsAux{{Name: "alpha", Visibility: shareid.Public}},
		ExpiresAt: time.Now().Add(time.Minute),
	})

	p, _, err := New(e, token, []string{"zzz-unrelated"}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if err := e.AddLocation(session.LocationParams{SessionID: "s1", Point: session.Point{Time: 1}, Now: time.Now()}); err != nil {
		t.Fatalf("AddLocation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := p.Next(ctx); err != context.DeadlineExceeded {
		t.Fatalf("got err=%v, want context.DeadlineExceeded (update should be filtered out)", err)
	}
}

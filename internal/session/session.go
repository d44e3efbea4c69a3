package session

import "time"

// SessionID is an opaque, unique token identifying a publisher's share
// session.
type SessionID string

// FetchID is a dense, monotonically increasing handle subscribers use to
// correlate points to a session. Never reused within a process lifetime.
type FetchID uint32

// Tag is a visibility-qualified label attached to a session.
type Tag struct {
	Name   string
	Public bool
}

// LogFlags is the parsed state of the share-id's optional "log" keyword.
// The name is used only for diagnostics, never broadcast.
type LogFlags struct {
	Enabled bool
	Name    string
}

// Session is one active publisher's share session.
type Session struct {
	ID          SessionID
	FetchID     FetchID
	Tags        []Tag
	points      *pointRing
	ExpiresAt   time.Time
	MaxPoints   uint64
	MaxPointAge *time.Duration
	RejectData  bool
	NoStop      bool
	Log         LogFlags
	Name        string

	// addedToExpiration prevents multiple point-expiry heap enrollments
	// for the same "front" point; cleared whenever the front changes.
	addedToExpiration bool
}

// newSession constructs a Session with an empty point ring sized to
// maxPoints.
func newSession(id SessionID, fetchID FetchID, tags []Tag, expiresAt time.Time, maxPoints uint64, maxPointAge *time.Duration, noStop bool, log LogFlags, name string) *Session {
	return &Session{
		ID:          id,
		FetchID:     fetchID,
		Tags:        tags,
		points:      newPointRing(int(maxPoints)),
		ExpiresAt:   expiresAt,
		MaxPoints:   maxPoints,
		MaxPointAge: maxPointAge,
		NoStop:      noStop,
		Log:         log,
		Name:        name,
	}
}

// PublicTagNames returns the names of this session's public tags.
func (s *Session) PublicTagNames() []string {
	var out []string
	for _, t := range s.Tags {
		if t.Public {
			out = append(out, t.Name)
		}
	}
	return out
}

// TagNames returns the names of all of this session's tags, public and
// private.
func (s *Session) TagNames() []string {
	out := make([]string, len(s.Tags))
	for i, t := range s.Tags {
		out[i] = t.Name
	}
	return out
}

// Points returns a defensive copy of the session's current point queue,
// oldest first. Callers must never be handed the internal ring directly.
func (s *Session) Points() []Point {
	return s.points.snapshot()
}

// clone returns a defensive deep copy of s, safe to hand to a caller
// outside the Engine's lock.
func (s *Session) clone() *Session {
	tagsCopy := make([]Tag, len(s.Tags))
	copy(tagsCopy, s.Tags)

	var maxAgeCopy *time.Duration
	if s.MaxPointAge != nil {
		d := *s.MaxPointAge
		maxAgeCopy = &d
	}

	cp := &Session{
		ID:          s.ID,
		FetchID:     s.FetchID,
		Tags:        tagsCopy,
		points:      newPointRing(s.points.max),
		ExpiresAt:   s.ExpiresAt,
		MaxPoints:   s.MaxPoints,
		MaxPointAge: maxAgeCopy,
		RejectData:  s.RejectData,
		NoStop:      s.NoStop,
		Log:         s.Log,
		Name:        s.Name,
	}
	cp.points.points = s.points.snapshot()
	return cp
}

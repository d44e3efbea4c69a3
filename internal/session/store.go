package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ducktracker/server/internal/auth"
	"github.com/ducktracker/server/internal/broadcast"
	"github.com/ducktracker/server/internal/coordwrap"
	"github.com/ducktracker/server/internal/expiry"
	"github.com/ducktracker/server/internal/shareid"
	"github.com/ducktracker/server/internal/storage"
	"github.com/ducktracker/server/internal/tokenset"
)

// Config bundles the Engine's tunable defaults, sourced from the CLI
// flags parsed in internal/config.
type Config struct {
	DefaultPublicTag string
	DefaultTag       string // accepted for CLI-surface parity; not used by the Engine
	GlobalMaxPoints  uint64
	DefaultPoints    uint64
	UpdateInterval   time.Duration
	TokenSetCapacity int
	CoordWrap        *coordwrap.Box // nil disables wrapping
}

// CreateParams is the input to AddSession, assembled by the HTTP layer
// from the parsed share-id and request fields.
type CreateParams struct {
	SessionID SessionID
	Tags      shareid.TagsAux
	Options   shareid.Options
	ExpiresAt time.Time
}

// LocationParams is the input to AddLocation.
type LocationParams struct {
	SessionID SessionID
	Point     Point
	Now       time.Time
}

// Engine owns every piece of mutable core state behind one coarse lock —
// the session map, TagIndex, both expiry heaps, and the BoundedTokenSet —
// matching §5's single-big-lock mandate and generalizing the teacher's
// map-behind-mutex Store to the location-broker domain.
type Engine struct {
	cfg         Config
	persistence *storage.Store
	broadcaster *broadcast.Broadcaster
	authn       *auth.Authenticator

	mu          sync.Mutex
	sessions    map[SessionID]*Session
	tagIndex    *TagIndex
	tokens      *tokenset.BoundedSet
	nextFetchID FetchID

	sessionHeap *expiry.Heap
	pointHeap   *expiry.Heap
	sessionSched *expiry.Scheduler
	pointSched   *expiry.Scheduler
}

// NewEngine constructs an Engine. Call Restore once at startup to load
// persisted sessions, then Run to start the expiry workers.
func NewEngine(cfg Config, persistence *storage.Store, broadcaster *broadcast.Broadcaster, authn *auth.Authenticator) *Engine {
	e := &Engine{
		cfg:         cfg,
		persistence: persistence,
		broadcaster: broadcaster,
		authn:       authn,
		sessions:    make(map[SessionID]*Session),
		tagIndex:    NewTagIndex(),
		tokens:      tokenset.New(cfg.TokenSetCapacity),
		sessionHeap: expiry.NewHeap(),
		pointHeap:   expiry.NewHeap(),
	}
	e.sessionSched = expiry.NewScheduler(e.drainSessionExpiry)
	e.pointSched = expiry.NewScheduler(e.drainPointExpiry)
	return e
}

// Run starts both expiry workers. It returns immediately; the workers run
// until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	go e.sessionSched.Run(ctx)
	go e.pointSched.Run(ctx)
}

// Restore loads every persisted session whose ExpiresAt is still in the
// future relative to now, and drops (deleting from persistence) every
// session that has already expired. Recomputes the FetchID counter as
// (max persisted FetchID + 1), per §3's restart rule. Called exactly once
// at startup.
func (e *Engine) Restore(now time.Time) error {
	metas, err := e.persistence.ListAll()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var maxFetchIDSeen FetchID
	anySeen := false

	for _, m := range metas {
		if !anySeen || FetchID(m.FetchID) > maxFetchIDSeen {
			maxFetchIDSeen = FetchID(m.FetchID)
			anySeen = true
		}

		if !m.ExpiresAt.After(now) {
			if err := e.persistence.DeleteSession(m.SessionID); err != nil {
				log.Printf("session: failed to drop expired persisted session %s: %v", m.SessionID, err)
			}
			continue
		}

		tags := make([]Tag, len(m.Tags))
		for i, t := range m.Tags {
			tags[i] = Tag{Name: t.Name, Public: t.Public}
		}

		var logFlags LogFlags
		if m.Log != nil {
			logFlags = LogFlags{Enabled: m.Log.Enabled, Name: m.Log.Name}
		}

		sess := newSession(SessionID(m.SessionID), FetchID(m.FetchID), tags, m.ExpiresAt, m.MaxPoints, m.MaxPointAge, m.NoStop, logFlags, m.Name)
		sess.RejectData = m.RejectData

		e.sessions[sess.ID] = sess
		e.sessionHeap.Push(sess.ExpiresAt, string(sess.ID))
		e.tagIndex.Increment(sess.PublicTagNames())
	}

	if anySeen && maxFetchIDSeen+1 > e.nextFetchID {
		e.nextFetchID = maxFetchIDSeen + 1
	}
	return nil
}

// AddSession implements §4.5's add_session.
func (e *Engine) AddSession(p CreateParams) (SessionID, FetchID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tags := p.Tags
	if len(tags) == 0 {
		tags = shareid.TagsAux{{Name: e.cfg.DefaultPublicTag, Visibility: shareid.Public}}
	}

	maxPoints := e.cfg.DefaultPoints
	if p.Options.MaxPoints != nil {
		maxPoints = *p.Options.MaxPoints
	}
	if maxPoints < 1 {
		maxPoints = 1
	}
	if maxPoints > e.cfg.GlobalMaxPoints {
		maxPoints = e.cfg.GlobalMaxPoints
	}

	fetchID := e.nextFetchID
	e.nextFetchID++

	sessTags := make([]Tag, len(tags))
	for i, t := range tags {
		sessTags[i] = Tag{Name: t.Name, Public: t.Visibility == shareid.Public}
	}

	sess := newSession(p.SessionID, fetchID, sessTags, p.ExpiresAt, maxPoints, p.Options.MaxPointAge, p.Options.NoStop, LogFlags(p.Options.Log), p.Options.Name)

	e.sessions[sess.ID] = sess
	e.sessionHeap.Push(sess.ExpiresAt, string(sess.ID))
	e.tagIndex.Increment(sess.PublicTagNames())

	fetches := map[uint32]broadcast.Fetch{
		uint32(fetchID): {
			Tags:        sess.TagNames(),
			MaxPoints:   maxPoints,
			MaxPointAge: p.Options.MaxPointAge,
			Name:        p.Options.Name,
		},
	}
	ctx := broadcast.NewContext(sess.TagNames(), false)
	upd := broadcast.Update{
		Meta:    e.meta(),
		Changes: []broadcast.Change{broadcast.AddFetchChange(fetches, sess.PublicTagNames())},
	}
	e.broadcaster.Publish(ctx, upd)

	e.persistAsync(sess)
	e.sessionSched.Notify()

	return sess.ID, fetchID
}

// StopSession implements §4.5's stop_session.
func (e *Engine) StopSession(id SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[id]
	if !ok {
		return ErrNoSuchSession
	}

	if sess.NoStop {
		sess.RejectData = true
		e.persistAsync(sess)
		return nil
	}

	e.removeSessionLocked(sess, true)
	return nil
}

// AddLocation implements §4.5's add_location.
func (e *Engine) AddLocation(p LocationParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[p.SessionID]
	if !ok || sess.RejectData {
		return ErrNoSuchSession
	}
	if !sess.ExpiresAt.After(p.Now) {
		e.removeSessionLocked(sess, true)
		return ErrSessionExpired
	}

	point := p.Point
	if e.cfg.CoordWrap != nil {
		point.Lat = e.cfg.CoordWrap.WrapLatitude(point.Lat)
		point.Lon = e.cfg.CoordWrap.WrapLongitude(point.Lon)
	}

	if evicted := sess.points.push(point); evicted {
		sess.addedToExpiration = false
	}
	e.enrollPointExpiryLocked(sess)

	ctx := broadcast.NewContext(sess.TagNames(), false)
	upd := broadcast.Update{
		Meta: e.meta(),
		Changes: []broadcast.Change{broadcast.AddChange(map[uint32][]broadcast.Point{
			uint32(sess.FetchID): {toBroadcastPoint(point)},
		})},
	}
	e.broadcaster.Publish(ctx, upd)
	return nil
}

// Authenticate checks user/pass under the same lock that guards the
// TokenSet, per §5.
func (e *Engine) Authenticate(user, pass string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authn.Authenticate(user, pass)
}

// CreateToken authenticates and, on success, mints and registers a fresh
// auth token. Implements §4.5's create_token.
func (e *Engine) CreateToken(user, pass string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authn.CreateToken(e.tokens, user, pass)
}

// HasToken reports whether token is currently registered.
func (e *Engine) HasToken(token string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens.Contains(token)
}

// NewSubscription implements §4.8's construction steps 2-4: it computes
// the effective tag filter, builds the initial Reset/AddFetch/Add
// snapshot restricted to that filter, and subscribes to the broadcaster —
// all under the same lock used for mutation, so there is no window in
// which a concurrent update could be missed by both the snapshot and the
// live subscription.
func (e *Engine) NewSubscription(requestedTags []string) (*broadcast.Subscription, broadcast.Update, map[string]struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	autoSubscribe := len(requestedTags) == 0
	var tags map[string]struct{}
	if autoSubscribe {
		tags = toSet(e.tagIndex.PublicTags())
	} else {
		tags = toSet(requestedTags)
	}

	fetches := make(map[uint32]broadcast.Fetch)
	pointsByFetch := make(map[uint32][]broadcast.Point)

	for _, sess := range e.sessions {
		if !intersects(tags, sess.TagNames()) {
			continue
		}
		fetches[uint32(sess.FetchID)] = broadcast.Fetch{
			Tags:        sess.TagNames(),
			MaxPoints:   sess.MaxPoints,
			MaxPointAge: sess.MaxPointAge,
			Name:        sess.Name,
		}
		pts := sess.Points()
		wirePts := make([]broadcast.Point, len(pts))
		for i, pt := range pts {
			wirePts[i] = toBroadcastPoint(pt)
		}
		pointsByFetch[uint32(sess.FetchID)] = wirePts
	}

	changes := []broadcast.Change{
		broadcast.ResetChange(),
		broadcast.AddFetchChange(fetches, e.tagIndex.PublicTags()),
		broadcast.AddChange(pointsByFetch),
	}
	initial := broadcast.Update{Meta: e.meta(), Changes: changes}

	sub := e.broadcaster.Subscribe()

	return sub, initial, tags, autoSubscribe
}

// Unsubscribe releases sub's registry slot, used when a subscriber's
// stream ends (client disconnect or Lagged).
func (e *Engine) Unsubscribe(sub *broadcast.Subscription) {
	e.broadcaster.Unsubscribe(sub)
}

// ActiveSessionCount reports the number of live sessions, for /metrics.
func (e *Engine) ActiveSessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// TotalPoints reports the combined size of every session's point ring,
// for /metrics.
func (e *Engine) TotalPoints() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, sess := range e.sessions {
		total += sess.points.len()
	}
	return total
}

// PublicTagCount reports the size of the public tag universe, for
// /metrics.
func (e *Engine) PublicTagCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tagIndex.PublicTags())
}

// PrivateTagCount reports the number of distinct private-only tag names
// currently in use, for /metrics.
func (e *Engine) PrivateTagCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]struct{})
	for _, sess := range e.sessions {
		for _, t := range sess.Tags {
			if !t.Public {
				seen[t.Name] = struct{}{}
			}
		}
	}
	return len(seen)
}

// removeSessionLocked removes sess from memory, decrements its public tag
// refcounts, emits ExpireFetch, and (if requested) fire-and-forget
// deletes it from persistence. Callers must hold e.mu. The session-expiry
// heap entry for sess is left in place; it is discarded at pop time
// (lazy deletion).
func (e *Engine) removeSessionLocked(sess *Session, deletePersisted bool) {
	delete(e.sessions, sess.ID)
	e.tagIndex.Decrement(sess.PublicTagNames())

	ctx := broadcast.NewContext(sess.TagNames(), false)
	upd := broadcast.Update{
		Meta:    e.meta(),
		Changes: []broadcast.Change{broadcast.ExpireFetchChange(uint32(sess.FetchID))},
	}
	e.broadcaster.Publish(ctx, upd)

	if deletePersisted {
		e.persistDeleteAsync(sess.ID)
	}
}

// drainSessionExpiry is the session-expiry heap's expiry.DrainFunc.
func (e *Engine) drainSessionExpiry(now time.Time) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		entry, ok := e.sessionHeap.Peek()
		if !ok || entry.When.After(now) {
			break
		}
		e.sessionHeap.Pop()

		sess, exists := e.sessions[SessionID(entry.SessionID)]
		if !exists || sess.ExpiresAt.After(now) {
			continue // stale: stopped early, or a later re-enrollment already handled it
		}
		e.removeSessionLocked(sess, true)
	}

	if entry, ok := e.sessionHeap.Peek(); ok {
		return entry.When, true
	}
	return time.Time{}, false
}

// drainPointExpiry is the point-expiry heap's expiry.DrainFunc.
func (e *Engine) drainPointExpiry(now time.Time) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		entry, ok := e.pointHeap.Peek()
		if !ok || entry.When.After(now) {
			break
		}
		e.pointHeap.Pop()

		sess, exists := e.sessions[SessionID(entry.SessionID)]
		if !exists {
			continue
		}
		sess.addedToExpiration = false
		e.expireDataLocked(sess, now)
	}

	if entry, ok := e.pointHeap.Peek(); ok {
		return entry.When, true
	}
	return time.Time{}, false
}

// expireDataLocked implements §4.6's expire_data: pop every point from the
// front whose age exceeds MaxPointAge, then re-enroll the new front.
func (e *Engine) expireDataLocked(sess *Session, now time.Time) {
	if sess.MaxPointAge == nil {
		return
	}
	for {
		front, ok := sess.points.front()
		if !ok {
			break
		}
		if unixSecondsToTime(front.Time).Add(*sess.MaxPointAge).After(now) {
			break
		}
		sess.points.popFront()
	}
	e.enrollPointExpiryLocked(sess)
}

// enrollPointExpiryLocked enrolls sess's current front point into the
// point-expiry heap, unless one is already enrolled for this front
// (addedToExpiration) or the session has no max point age configured.
func (e *Engine) enrollPointExpiryLocked(sess *Session) {
	if sess.MaxPointAge == nil || sess.addedToExpiration {
		return
	}
	front, ok := sess.points.front()
	if !ok {
		return
	}
	when := unixSecondsToTime(front.Time).Add(*sess.MaxPointAge)
	e.pointHeap.Push(when, string(sess.ID))
	sess.addedToExpiration = true
	e.pointSched.Notify()
}

func (e *Engine) meta() broadcast.Meta {
	return broadcast.Meta{
		ServerTimeMicros: uint64(time.Now().UnixMicro()),
		IntervalSeconds:  uint64(e.cfg.UpdateInterval / time.Second),
	}
}

func (e *Engine) persistAsync(sess *Session) {
	if e.persistence == nil {
		return
	}
	meta := toStorageMeta(sess)
	go func() {
		if err := e.persistence.InsertSession(meta); err != nil {
			log.Printf("session: failed to persist session %s: %v", meta.SessionID, err)
		}
	}()
}

func (e *Engine) persistDeleteAsync(id SessionID) {
	if e.persistence == nil {
		return
	}
	go func() {
		if err := e.persistence.DeleteSession(string(id)); err != nil {
			log.Printf("session: failed to delete persisted session %s: %v", id, err)
		}
	}()
}

func toStorageMeta(sess *Session) storage.SessionMeta {
	tags := make([]storage.TagMeta, len(sess.Tags))
	for i, t := range sess.Tags {
		tags[i] = storage.TagMeta{Name: t.Name, Public: t.Public}
	}
	var log *storage.LogMeta
	if sess.Log.Enabled {
		log = &storage.LogMeta{Enabled: sess.Log.Enabled, Name: sess.Log.Name}
	}
	return storage.SessionMeta{
		SessionID:   string(sess.ID),
		ExpiresAt:   sess.ExpiresAt,
		FetchID:     uint32(sess.FetchID),
		Tags:        tags,
		MaxPoints:   sess.MaxPoints,
		MaxPointAge: sess.MaxPointAge,
		RejectData:  sess.RejectData,
		NoStop:      sess.NoStop,
		Log:         log,
		Name:        sess.Name,
	}
}

func unixSecondsToTime(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second)))
}

func toBroadcastPoint(p Point) broadcast.Point {
	return broadcast.Point{
		Lat:      p.Lat,
		Lon:      p.Lon,
		Time:     p.Time,
		Speed:    p.Speed,
		Accuracy: p.Accuracy,
		Provider: p.Provider,
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func intersects(set map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

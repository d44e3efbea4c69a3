package broadcast

import "time"

// Context travels alongside every Update so a subscriber can filter
// without consulting the store: it carries the full tag set of the
// session that produced the update (or is empty for a heartbeat).
type Context struct {
	Tags        map[string]struct{}
	IsHeartbeat bool
}

// NewContext builds a Context from a tag name slice.
func NewContext(tags []string, isHeartbeat bool) Context {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return Context{Tags: set, IsHeartbeat: isHeartbeat}
}

// Intersects reports whether c.Tags shares at least one member with other.
func (c Context) Intersects(other map[string]struct{}) bool {
	small, big := c.Tags, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for t := range small {
		if _, ok := big[t]; ok {
			return true
		}
	}
	return false
}

// Meta is the per-Update header delivered to subscribers.
type Meta struct {
	ServerTimeMicros uint64
	IntervalSeconds  uint64
}

// Point is the wire representation of a location fix, serialized as a
// fixed-order tuple: [lat, lon, time, speed?, accuracy?, provider].
type Point struct {
	Lat      float64
	Lon      float64
	Time     float64
	Speed    *float64
	Accuracy *float64
	Provider int
}

// Fetch is the per-session descriptor announced in an AddFetch change.
type Fetch struct {
	Tags        []string
	MaxPoints   uint64
	MaxPointAge *time.Duration
	Name        string
}

// ChangeKind discriminates the tagged union of Change.
type ChangeKind int

const (
	ChangeReset ChangeKind = iota
	ChangeAddFetch
	ChangeAdd
	ChangeExpireFetch
)

// Change is one element of an Update's change list. Only the fields
// relevant to Kind are populated.
type Change struct {
	Kind ChangeKind

	// ChangeAddFetch
	Fetches map[uint32]Fetch
	Public  []string

	// ChangeAdd
	Points map[uint32][]Point

	// ChangeExpireFetch
	FetchID uint32
}

// ResetChange returns a Reset change.
func ResetChange() Change { return Change{Kind: ChangeReset} }

// AddFetchChange returns an AddFetch change.
func AddFetchChange(fetches map[uint32]Fetch, public []string) Change {
	return Change{Kind: ChangeAddFetch, Fetches: fetches, Public: public}
}

// AddChange returns an Add change.
func AddChange(points map[uint32][]Point) Change {
	return Change{Kind: ChangeAdd, Points: points}
}

// ExpireFetchChange returns an ExpireFetch change.
func ExpireFetchChange(fetchID uint32) Change {
	return Change{Kind: ChangeExpireFetch, FetchID: fetchID}
}

// Update is one message on the broadcast channel: a header plus an ordered
// list of changes.
type Update struct {
	Meta    Meta
	Changes []Change
}

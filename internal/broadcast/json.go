package broadcast

import (
	"encoding/json"
	"strconv"
)

// MarshalJSON renders Meta per §6's SSE payload shape.
func (m Meta) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ServerTime uint64 `json:"serverTime"`
		Interval   uint64 `json:"interval"`
	}{m.ServerTimeMicros, m.IntervalSeconds})
}

// MarshalJSON renders Point as the fixed-order tuple [lat, lon, time, spd,
// acc, provider] per §6, with absent optional fields encoded as null.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Lat, p.Lon, p.Time, p.Speed, p.Accuracy, p.Provider})
}

type fetchWire struct {
	Tags        []string `json:"tags"`
	MaxPoints   uint64   `json:"max_points"`
	MaxPointAge *float64 `json:"max_point_age,omitempty"`
	Name        string   `json:"name,omitempty"`
}

// MarshalJSON renders Change as the tagged union described in §6: one of
// reset, add_fetch, add, or expire_fetch.
func (c Change) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ChangeReset:
		return json.Marshal(struct {
			Reset any `json:"reset"`
		}{nil})

	case ChangeAddFetch:
		fetches := make(map[string]fetchWire, len(c.Fetches))
		for id, f := range c.Fetches {
			wire := fetchWire{Tags: f.Tags, MaxPoints: f.MaxPoints, Name: f.Name}
			if f.MaxPointAge != nil {
				secs := f.MaxPointAge.Seconds()
				wire.MaxPointAge = &secs
			}
			fetches[uint32Key(id)] = wire
		}
		public := c.Public
		if public == nil {
			public = []string{}
		}
		return json.Marshal(struct {
			AddFetch struct {
				Fetches map[string]fetchWire `json:"fetches"`
				Public  []string             `json:"public"`
			} `json:"add_fetch"`
		}{struct {
			Fetches map[string]fetchWire `json:"fetches"`
			Public  []string             `json:"public"`
		}{fetches, public}})

	case ChangeAdd:
		points := make(map[string][]Point, len(c.Points))
		for id, pts := range c.Points {
			points[uint32Key(id)] = pts
		}
		return json.Marshal(struct {
			Add struct {
				Points map[string][]Point `json:"points"`
			} `json:"add"`
		}{struct {
			Points map[string][]Point `json:"points"`
		}{points}})

	case ChangeExpireFetch:
		return json.Marshal(struct {
			ExpireFetch struct {
				FetchID uint32 `json:"fetch_id"`
			} `json:"expire_fetch"`
		}{struct {
			FetchID uint32 `json:"fetch_id"`
		}{c.FetchID}})
	}

	return json.Marshal(struct{}{})
}

func uint32Key(v uint32) string {
	// map keys in the wire format are the decimal fetch ID, matching
	// JSON's requirement that object keys be strings.
	return strconv.FormatUint(uint64(v), 10)
}

// MarshalJSON renders Update per §6's {meta, changes} shape.
func (u Update) MarshalJSON() ([]byte, error) {
	changes := u.Changes
	if changes == nil {
		changes = []Change{}
	}
	return json.Marshal(struct {
		Meta    Meta     `json:"meta"`
		Changes []Change `json:"changes"`
	}{u.Meta, changes})
}

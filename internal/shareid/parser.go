// Package shareid parses the user-supplied "lid" string that accompanies a
// POST to /api/create.php into a tag set and a small bag of session
// options. The grammar is comma-separated fields, each either a bare token
// or a keyword:value pair. Bare tokens nostop and log set options; any other
// bare token is a private tag. Keywords are pub/public, priv/private,
// points, expire, name and log.
package shareid

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Visibility is whether a tag is advertised to subscribers connecting
// without an explicit tag filter.
type Visibility int

const (
	Private Visibility = iota
	Public
)

// Tag is one parsed tag and its visibility.
type Tag struct {
	Name       string
	Visibility Visibility
}

// TagsAux is the parsed tag set of a share-id, in first-seen order.
type TagsAux []Tag

// Public returns the names of tags with Public visibility.
func (t TagsAux) Public() []string {
	var out []string
	for _, tag := range t {
		if tag.Visibility == Public {
			out = append(out, tag.Name)
		}
	}
	return out
}

// Names returns the names of all tags regardless of visibility.
func (t TagsAux) Names() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = tag.Name
	}
	return out
}

// LogFlags is the parsed state of a "log" keyword or bare token.
type LogFlags struct {
	Enabled bool
	Name    string
}

// Options holds the non-tag fields a share-id can set.
type Options struct {
	NoStop       bool
	MaxPoints    *uint64
	MaxPointAge  *time.Duration
	Name         string
	Log          LogFlags
}

// ParseError reports a malformed share-id field with a human-readable
// message suitable for a 400 response body.
type ParseError struct {
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid share-id field %q: %s", e.Field, e.Message)
}

// Parse parses s into a TagsAux and Options. An empty or whitespace-only s
// synthesizes a single private tag from a freshly generated id (newID).
func Parse(s string, newID func() string) (TagsAux, Options, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TagsAux{{Name: newID(), Visibility: Private}}, Options{}, nil
	}

	var tags TagsAux
	var opts Options

	for _, rawField := range strings.Split(s, ",") {
		field := strings.TrimSpace(rawField)
		if field == "" {
			continue
		}

		keyword, value, hasValue := splitKeyword(field)
		if !hasValue {
			switch field {
			case "nostop":
				opts.NoStop = true
			case "log":
				opts.Log.Enabled = true
			default:
				if !validTagName(field) {
					return nil, Options{}, &ParseError{Field: field, Message: "tag must be nonempty alphanumerics, '-', or '_'"}
				}
				tags = append(tags, Tag{Name: field, Visibility: Private})
			}
			continue
		}

		switch keyword {
		case "pub", "public":
			if !validTagName(value) {
				return nil, Options{}, &ParseError{Field: field, Message: "tag must be nonempty alphanumerics, '-', or '_'"}
			}
			tags = append(tags, Tag{Name: value, Visibility: Public})
		case "priv", "private":
			if !validTagName(value) {
				return nil, Options{}, &ParseError{Field: field, Message: "tag must be nonempty alphanumerics, '-', or '_'"}
			}
			tags = append(tags, Tag{Name: value, Visibility: Private})
		case "points":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, Options{}, &ParseError{Field: field, Message: "points must be an unsigned integer"}
			}
			opts.MaxPoints = &n
		case "expire":
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, Options{}, &ParseError{Field: field, Message: "expire must be a duration like \"10s\" or \"2h30m\""}
			}
			opts.MaxPointAge = &d
		case "name":
			opts.Name = value
		case "log":
			opts.Log = LogFlags{Enabled: true, Name: value}
		default:
			return nil, Options{}, &ParseError{Field: field, Message: "unknown keyword"}
		}
	}

	return tags, opts, nil
}

// validTagName reports whether name is a nonempty string of Unicode
// alphanumerics, '-', or '_', per the tag grammar.
func validTagName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// splitKeyword splits "keyword:value" into its parts. hasValue is false for
// a bare token with no colon.
func splitKeyword(field string) (keyword, value string, hasValue bool) {
	idx := strings.IndexByte(field, ':')
	if idx < 0 {
		return "", "", false
	}
	return field[:idx], field[idx+1:], true
}

// Canonical re-emits tags and options as a share-id string in the
// "pub:a,priv:b,..." form accepted by Parse. Used only for the parser's own
// round-trip test; the server never needs to re-derive a share-id string
// from a live session.
func Canonical(tags TagsAux, opts Options) string {
	var fields []string
	for _, t := range tags {
		if t.Visibility == Public {
			fields = append(fields, "pub:"+t.Name)
		} else {
			fields = append(fields, "priv:"+t.Name)
		}
	}
	if opts.NoStop {
		fields = append(fields, "nostop")
	}
	if opts.MaxPoints != nil {
		fields = append(fields, "points:"+strconv.FormatUint(*opts.MaxPoints, 10))
	}
	if opts.MaxPointAge != nil {
		fields = append(fields, "expire:"+opts.MaxPointAge.String())
	}
	if opts.Name != "" {
		fields = append(fields, "name:"+opts.Name)
	}
	if opts.Log.Enabled {
		if opts.Log.Name != "" {
			fields = append(fields, "log:"+opts.Log.Name)
		} else {
			fields = append(fields, "log")
		}
	}
	return strings.Join(fields, ",")
}

// NewID generates a fresh identifier suitable both as a synthesized tag
// name and, with a different length, as a SessionID or auth token.
func NewID(length int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, length)
	idx := make([]byte, length)
	if _, err := rand.Read(idx); err != nil {
		panic("shareid: failed to read random bytes: " + err.Error())
	}
	for i, b := range idx {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

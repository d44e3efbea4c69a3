// Package storage implements the durable session metadata store described
// in §4.4/§6: a single `sessions` table, written fire-and-forget from the
// hot path and read back once at startup. Only metadata is persisted —
// in-memory location rings are never written, and are always empty after
// a restart load.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	expires_at     TEXT NOT NULL,
	fetch_id       INTEGER NOT NULL,
	tags           TEXT NOT NULL,
	max_points     INTEGER NOT NULL,
	max_point_age  TEXT,
	reject_data    INTEGER NOT NULL,
	no_stop        INTEGER NOT NULL,
	log            TEXT,
	name           TEXT
);
`

// TagMeta is the JSON-encoded shape of one persisted tag.
type TagMeta struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// LogMeta is the JSON-encoded shape of a session's optional log flags.
type LogMeta struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
}

// SessionMeta is the persisted projection of a Session: every field the
// schema round-trips, and nothing else (no location ring).
type SessionMeta struct {
	SessionID   string
	ExpiresAt   time.Time
	FetchID     uint32
	Tags        []TagMeta
	MaxPoints   uint64
	MaxPointAge *time.Duration
	RejectData  bool
	NoStop      bool
	Log         *LogMeta
	Name        string
}

// Store is a SQLite-backed Persistence implementation.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the sessions table exists. Failures here are startup errors —
// the caller (cmd/ducktracker-server) should treat them as fatal, exit
// code 10 per §7.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertSession durably records meta, overwriting any existing row with
// the same SessionID. There is no update operation in the interface
// consumed by the hot path (§4.4); a changed session is re-inserted via
// primary-key collision handling, implemented here as delete-then-insert
// inside one transaction.
func (s *Store) InsertSession(meta SessionMeta) error {
	tagsJSON, err := json.Marshal(meta.Tags)
	if err != nil {
		return fmt.Errorf("storage: encoding tags: %w", err)
	}

	var logJSON []byte
	if meta.Log != nil {
		logJSON, err = json.Marshal(meta.Log)
		if err != nil {
			return fmt.Errorf("storage: encoding log flags: %w", err)
		}
	}

	var maxPointAge *string
	if meta.MaxPointAge != nil {
		s := meta.MaxPointAge.String()
		maxPointAge = &s
	}

	var name *string
	if meta.Name != "" {
		name = &meta.Name
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions WHERE session_id = ?`, meta.SessionID); err != nil {
		return fmt.Errorf("storage: deleting existing row: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, expires_at, fetch_id, tags, max_points, max_point_age, reject_data, no_stop, log, name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.SessionID,
		meta.ExpiresAt.Format(time.RFC3339),
		meta.FetchID,
		string(tagsJSON),
		meta.MaxPoints,
		maxPointAge,
		boolToInt(meta.RejectData),
		boolToInt(meta.NoStop),
		nullableString(logJSON),
		name,
	)
	if err != nil {
		return fmt.Errorf("storage: inserting session: %w", err)
	}

	return tx.Commit()
}

// DeleteSession removes a session's row, if present.
func (s *Store) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("storage: deleting session: %w", err)
	}
	return nil
}

// ListAll returns every persisted session. Called exactly once, at
// startup; the caller is responsible for dropping rows whose ExpiresAt
// has already passed (§3's "not loaded into memory" rule) and deleting
// them from persistence.
func (s *Store) ListAll() ([]SessionMeta, error) {
	rows, err := s.db.Query(
		`SELECT session_id, expires_at, fetch_id, tags, max_points, max_point_age, reject_data, no_stop, log, name FROM sessions`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: listing sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var (
			meta         SessionMeta
			expiresAt    string
			tagsJSON     string
			maxPointAge  sql.NullString
			rejectData   int
			noStop       int
			logJSON      sql.NullString
			name         sql.NullString
		)
		if err := rows.Scan(&meta.SessionID, &expiresAt, &meta.FetchID, &tagsJSON, &meta.MaxPoints, &maxPointAge, &rejectData, &noStop, &logJSON, &name); err != nil {
			return nil, fmt.Errorf("storage: scanning session row: %w", err)
		}

		t, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("storage: parsing expires_at for %s: %w", meta.SessionID, err)
		}
		meta.ExpiresAt = t

		if err := json.Unmarshal([]byte(tagsJSON), &meta.Tags); err != nil {
			return nil, fmt.Errorf("storage: decoding tags for %s: %w", meta.SessionID, err)
		}

		if maxPointAge.Valid {
			d, err := time.ParseDuration(maxPointAge.String)
			if err != nil {
				return nil, fmt.Errorf("storage: parsing max_point_age for %s: %w", meta.SessionID, err)
			}
			meta.MaxPointAge = &d
		}

		meta.RejectData = rejectData != 0
		meta.NoStop = noStop != 0

		if logJSON.Valid {
			var lf LogMeta
			if err := json.Unmarshal([]byte(logJSON.String), &lf); err != nil {
				return nil, fmt.Errorf("storage: decoding log flags for %s: %w", meta.SessionID, err)
			}
			meta.Log = &lf
		}

		if name.Valid {
			meta.Name = name.String
		}

		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterating session rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

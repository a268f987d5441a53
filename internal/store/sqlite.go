package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeFormat is fixed width so that lexical order of stored timestamps is
// chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *SQLiteStore) { s.clock = clock }
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so a writer in another
	// process waits out busy_timeout instead of failing on a stale snapshot.
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single connection; concurrent transactions queue in database/sql.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		clock:   time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewID returns a monotonic ULID.
func (s *SQLiteStore) NewID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.Now()), s.entropy).String()
}

// Now returns the store clock in UTC.
func (s *SQLiteStore) Now() time.Time {
	return s.clock().UTC()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS emotional_memories (
		id                     TEXT PRIMARY KEY,
		user_id                INTEGER NOT NULL,
		interaction_kind       TEXT NOT NULL,
		occurred_at            TEXT NOT NULL,
		summary                TEXT NOT NULL,
		content                TEXT NOT NULL DEFAULT '',
		primary_emotion        TEXT NOT NULL,
		secondary_emotion      TEXT,
		intensity              INTEGER NOT NULL DEFAULT 3,
		context                TEXT,
		related_achievements   TEXT,
		related_narrative_keys TEXT,
		importance             REAL NOT NULL DEFAULT 1.0,
		decay_rate             REAL NOT NULL DEFAULT 0.1,
		last_recalled_at       TEXT,
		recall_count           INTEGER NOT NULL DEFAULT 0,
		tags                   TEXT,
		is_sensitive           INTEGER NOT NULL DEFAULT 0,
		is_forgotten           INTEGER NOT NULL DEFAULT 0,
		parent_memory_id       TEXT REFERENCES emotional_memories(id)
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user_time ON emotional_memories(user_id, occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_user_emotion ON emotional_memories(user_id, primary_emotion);
	CREATE INDEX IF NOT EXISTS idx_memories_user_importance ON emotional_memories(user_id, importance DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_parent ON emotional_memories(parent_memory_id);

	CREATE TABLE IF NOT EXISTS relationship_states (
		user_id                 INTEGER PRIMARY KEY,
		status                  TEXT NOT NULL DEFAULT 'initial',
		trust_level             REAL NOT NULL DEFAULT 0.1,
		familiarity             REAL NOT NULL DEFAULT 0.0,
		rapport                 REAL NOT NULL DEFAULT 0.1,
		dominant_emotion        TEXT,
		emotional_volatility    REAL NOT NULL DEFAULT 0.0,
		positive_interactions   INTEGER NOT NULL DEFAULT 0,
		negative_interactions   INTEGER NOT NULL DEFAULT 0,
		relationship_start      TEXT NOT NULL,
		last_interaction        TEXT,
		longest_absence_days    REAL NOT NULL DEFAULT 0,
		avg_response_time       REAL NOT NULL DEFAULT 0,
		avg_message_length      REAL NOT NULL DEFAULT 0,
		communication_frequency REAL NOT NULL DEFAULT 0,
		interaction_count       INTEGER NOT NULL DEFAULT 0,
		milestone_count         INTEGER NOT NULL DEFAULT 0,
		milestones              TEXT,
		boundaries              TEXT,
		preferences             TEXT,
		topic_interest          TEXT,
		emotion_counts          TEXT,
		version                 INTEGER NOT NULL DEFAULT 1,
		updated_at              TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contradictions (
		id                      TEXT PRIMARY KEY,
		user_id                 INTEGER NOT NULL,
		contradiction_type      TEXT NOT NULL,
		original_statement      TEXT NOT NULL,
		contradicting_statement TEXT NOT NULL,
		resolution              TEXT,
		detected_at             TEXT NOT NULL,
		resolved_at             TEXT,
		is_resolved             INTEGER NOT NULL DEFAULT 0,
		context                 TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_contradictions_user ON contradictions(user_id, is_resolved, detected_at DESC);

	CREATE TABLE IF NOT EXISTS contradiction_memories (
		contradiction_id TEXT NOT NULL REFERENCES contradictions(id),
		memory_id        TEXT NOT NULL REFERENCES emotional_memories(id),
		seq              INTEGER NOT NULL,
		PRIMARY KEY (contradiction_id, memory_id)
	);
	CREATE INDEX IF NOT EXISTS idx_contradiction_memories_memory ON contradiction_memories(memory_id);

	CREATE TABLE IF NOT EXISTS personality_profiles (
		user_id                    INTEGER PRIMARY KEY,
		warmth                     REAL NOT NULL DEFAULT 0.5,
		formality                  REAL NOT NULL DEFAULT 0.5,
		humor                      REAL NOT NULL DEFAULT 0.5,
		directness                 REAL NOT NULL DEFAULT 0.5,
		assertiveness              REAL NOT NULL DEFAULT 0.5,
		curiosity                  REAL NOT NULL DEFAULT 0.5,
		emotional_expressiveness   REAL NOT NULL DEFAULT 0.5,
		preferred_message_length   TEXT NOT NULL DEFAULT 'medium',
		complexity_level           REAL NOT NULL DEFAULT 0.5,
		emoji_usage                REAL NOT NULL DEFAULT 0.3,
		response_delay_ms          INTEGER NOT NULL DEFAULT 0,
		topic_preferences          TEXT,
		taboo_topics               TEXT,
		memory_reference_frequency REAL NOT NULL DEFAULT 0.3,
		adaptation_reason          TEXT,
		last_significant_change    TEXT,
		confidence_score           REAL NOT NULL DEFAULT 0,
		version                    INTEGER NOT NULL DEFAULT 1,
		created_at                 TEXT NOT NULL,
		updated_at                 TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InTx runs fn inside a transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&queries{db: tx}); err != nil {
		return asConflict(err)
	}
	if err = tx.Commit(); err != nil {
		return asConflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// asConflict reports a write against a snapshot that another connection has
// since changed as ErrConflict, so callers retry it like a version mismatch.
func asConflict(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_BUSY_SNAPSHOT && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type queries struct {
	db dbtx
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
}

// timeColumns parses the timestamp columns of one scanned row and keeps the
// first error.
type timeColumns struct {
	err error
}

func (c *timeColumns) at(column, s string) time.Time {
	t, err := parseTime(s)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("column %s: %w", column, err)
	}
	return t
}

func (c *timeColumns) ptr(column string, ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := c.at(column, ns.String)
	return &t
}

// encodeJSON returns nil for empty values so the column stays NULL.
func encodeJSON(v interface{}) (*string, error) {
	switch x := v.(type) {
	case []string:
		if len(x) == 0 {
			return nil, nil
		}
	case map[string]interface{}:
		if len(x) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeJSON(ns sql.NullString, v interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

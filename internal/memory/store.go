// Package memory provides the persistent key-value memory store, the tool
// that exposes it to the model, and the context-window manager with its
// compaction strategies.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one persisted memory record.
type Entry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	AccessCount int    `json:"access_count"`
}

// Store is a keyed, categorized value store backed by SQLite. It lives
// outside the context window; the agent reads and writes it through the
// memory tool. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    category TEXT,
    created_at TEXT,
    updated_at TEXT,
    access_count INTEGER
);
CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_updated_at ON memories(updated_at);
`

// OpenStore opens (or creates) the store at dbPath. Use ":memory:" for
// an ephemeral store in tests.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open db %q: %w", dbPath, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Put inserts or updates an entry. On update the value, category and
// updated_at change; created_at and access_count are preserved.
func (s *Store) Put(ctx context.Context, key, value, category string) error {
	if key == "" {
		return fmt.Errorf("memory: key is required")
	}
	now := nowISO()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memories (key, value, category, created_at, updated_at, access_count)
VALUES (?, ?, ?, ?, ?, 0)
ON CONFLICT(key) DO UPDATE SET
    value = excluded.value,
    category = excluded.category,
    updated_at = excluded.updated_at`,
		key, value, category, now, now)
	if err != nil {
		return fmt.Errorf("memory: store %q: %w", key, err)
	}
	return nil
}

// Get retrieves an entry by key and increments its access count.
// Returns (nil, nil) when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT key, value, COALESCE(category, ''), created_at, updated_at, access_count
FROM memories WHERE key = ?`, key)

	var e Entry
	if err := row.Scan(&e.Key, &e.Value, &e.Category, &e.CreatedAt, &e.UpdatedAt, &e.AccessCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: retrieve %q: %w", key, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1 WHERE key = ?`, key); err != nil {
		return nil, fmt.Errorf("memory: bump access count %q: %w", key, err)
	}
	e.AccessCount++
	return &e, nil
}

// Search returns entries whose key or value contains the query substring,
// newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
SELECT key, value, COALESCE(category, ''), created_at, updated_at, access_count
FROM memories
WHERE key LIKE ? OR value LIKE ?
ORDER BY updated_at DESC
LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: search %q: %w", query, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// List returns entries, optionally filtered by category, newest first.
func (s *Store) List(ctx context.Context, category string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.QueryContext(ctx, `
SELECT key, value, COALESCE(category, ''), created_at, updated_at, access_count
FROM memories WHERE category = ? ORDER BY updated_at DESC LIMIT ?`, category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
SELECT key, value, COALESCE(category, ''), created_at, updated_at, access_count
FROM memories ORDER BY updated_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: list: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CategoryCounts returns the number of entries per category. Entries
// without a category count under "".
func (s *Store) CategoryCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT COALESCE(category, ''), COUNT(*) FROM memories GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("memory: category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("memory: scan counts: %w", err)
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// Clear deletes by key, by category, or everything when both are empty.
// Returns the number of deleted entries.
func (s *Store) Clear(ctx context.Context, key, category string) (int, error) {
	var res sql.Result
	var err error
	switch {
	case key != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE key = ?`, key)
	case category != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE category = ?`, category)
	default:
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories`)
	}
	if err != nil {
		return 0, fmt.Errorf("memory: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Category, &e.CreatedAt, &e.UpdatedAt, &e.AccessCount); err != nil {
			return nil, fmt.Errorf("memory: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// summarize renders an entry list for tool output.
func summarize(entries []Entry) string {
	if len(entries) == 0 {
		return "(no entries)"
	}
	var sb strings.Builder
	for _, e := range entries {
		cat := e.Category
		if cat == "" {
			cat = "-"
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s (accessed %d, updated %s)\n",
			cat, e.Key, e.Value, e.AccessCount, e.UpdatedAt)
	}
	return sb.String()
}

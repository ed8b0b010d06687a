// Package memory keeps long-term facts about each WhatsApp contact and finds
// the ones relevant to the current conversation.
//
// Facts live in SQLite with an FTS5 index so retrieval needs no embedding
// service. Rows are scoped by thread and deduplicated by a hash of their
// normalised content.
package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Memory is one stored fact.
type Memory struct {
	ID        int64
	ThreadID  string
	Content   string
	CreatedAt time.Time
}

// Store is the SQLite-backed memory table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates dir if needed and opens dir/memory.db. An empty dir opens a
// private in-memory database.
func Open(dir string) (*Store, error) {
	dsn := ":memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("memory: create data dir: %w", err)
		}
		dsn = filepath.Join(dir, "memory.db")
	}

	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	if dir == "" {
		// every pooled connection would get its own empty :memory: database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id    TEXT NOT NULL,
			content      TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			UNIQUE (thread_id, content_hash)
		);

		CREATE INDEX IF NOT EXISTS idx_memories_thread ON memories(thread_id, id);

		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content,
			content='memories',
			content_rowid='id'
		);

		CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content) VALUES (new.id, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add stores content for threadID. It reports false when the same fact,
// ignoring case and spacing, is already stored for the thread.
func (s *Store) Add(ctx context.Context, threadID, content string) (bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memories (thread_id, content, content_hash, created_at) VALUES (?, ?, ?, ?)`,
		threadID, content, hashNormalized(content), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("memory: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("memory: insert: %w", err)
	}
	return n > 0, nil
}

// Search returns up to limit memories of threadID matching any term of
// query, best match first. A query without usable terms matches nothing.
func (s *Store) Search(ctx context.Context, threadID, query string, limit int) ([]Memory, error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, nil
	}
	return s.query(ctx, `
		SELECT m.id, m.thread_id, m.content, m.created_at
		FROM memories_fts fts
		JOIN memories m ON m.id = fts.rowid
		WHERE memories_fts MATCH ? AND m.thread_id = ?
		ORDER BY bm25(memories_fts)
		LIMIT ?`, ftsQuery, threadID, limitOrDefault(limit))
}

// Recent returns the newest memories of threadID, newest first.
func (s *Store) Recent(ctx context.Context, threadID string, limit int) ([]Memory, error) {
	return s.query(ctx, `
		SELECT id, thread_id, content, created_at
		FROM memories
		WHERE thread_id = ?
		ORDER BY id DESC
		LIMIT ?`, threadID, limitOrDefault(limit))
}

// DeleteThread forgets everything stored for threadID.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("memory: delete: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Memory
	for rows.Next() {
		var (
			m       Memory
			created string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 5
	}
	return limit
}

func hashNormalized(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

// sanitizeFTS turns free text into an OR query of quoted terms:
// "3 bedrooms in Miami?" becomes `"bedrooms" OR "miami"`. Terms shorter than
// three characters are dropped.
func sanitizeFTS(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

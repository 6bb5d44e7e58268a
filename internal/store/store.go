// Package store persists raw platform activity and every derived artifact
// (interaction edges, memes, conflicts, reputation history, security alerts,
// deliberations, publications) in a single SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"observatory/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database holding raw and derived tables.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New initializes the SQLite database at the given path.
// Pass ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	// Raw activity, append-only. Upserts refresh engagement counters only.
	rawTables := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		title TEXT,
		content TEXT,
		submolt TEXT,
		upvotes INTEGER DEFAULT 0,
		downvotes INTEGER DEFAULT 0,
		comment_count INTEGER DEFAULT 0,
		created_at DATETIME,
		ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		parent_id TEXT,
		author_id TEXT NOT NULL,
		content TEXT,
		upvotes INTEGER DEFAULT 0,
		downvotes INTEGER DEFAULT 0,
		created_at DATETIME,
		batch_seq INTEGER DEFAULT 0,
		ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);
	CREATE INDEX IF NOT EXISTS idx_comments_batch ON comments(batch_seq);
	CREATE INDEX IF NOT EXISTS idx_comments_author ON comments(author_id);

	CREATE TABLE IF NOT EXISTS actors (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL,
		display_name TEXT,
		first_seen DATETIME,
		last_seen DATETIME,
		post_count INTEGER DEFAULT 0,
		comment_count INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_actors_handle ON actors(handle);
	`

	// One row per directed (source, target, kind) edge; weight increments.
	interactionTable := `
	CREATE TABLE IF NOT EXISTS interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_from TEXT NOT NULL,
		author_to TEXT NOT NULL,
		kind TEXT NOT NULL,
		weight INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(author_from, author_to, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_from ON interactions(author_from);
	CREATE INDEX IF NOT EXISTS idx_interactions_to ON interactions(author_to);
	`

	memeTables := `
	CREATE TABLE IF NOT EXISTS memes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phrase TEXT NOT NULL UNIQUE,
		category TEXT DEFAULT '',
		author_count INTEGER DEFAULT 0,
		occurrence_count INTEGER DEFAULT 0,
		first_seen DATETIME,
		first_author TEXT,
		surfaced INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memes_surfaced ON memes(surfaced);

	CREATE TABLE IF NOT EXISTS meme_occurrences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phrase TEXT NOT NULL,
		author_id TEXT NOT NULL,
		item_id TEXT,
		seen_at DATETIME,
		UNIQUE(phrase, author_id)
	);
	CREATE INDEX IF NOT EXISTS idx_occurrences_phrase ON meme_occurrences(phrase);
	`

	// One row per dispute lifecycle; terminal rows are never reopened,
	// recurrence after a terminal state creates a new row.
	conflictTable := `
	CREATE TABLE IF NOT EXISTS conflicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_a TEXT NOT NULL,
		actor_b TEXT NOT NULL,
		topic TEXT NOT NULL,
		state TEXT NOT NULL,
		intensity INTEGER DEFAULT 1,
		exchange_count INTEGER DEFAULT 0,
		hostile_streak INTEGER DEFAULT 0,
		last_batch INTEGER DEFAULT 0,
		last_rebutter TEXT DEFAULT '',
		winner TEXT DEFAULT '',
		opened_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		closed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_pair ON conflicts(actor_a, actor_b, topic);
	CREATE INDEX IF NOT EXISTS idx_conflicts_state ON conflicts(state);
	`

	reputationTable := `
	CREATE TABLE IF NOT EXISTS reputation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id TEXT NOT NULL,
		batch_seq INTEGER NOT NULL,
		score REAL NOT NULL,
		engagement REAL DEFAULT 0,
		influence REAL DEFAULT 0,
		consistency REAL DEFAULT 0,
		controversy REAL DEFAULT 0,
		tier TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, batch_seq)
	);
	CREATE INDEX IF NOT EXISTS idx_reputation_actor ON reputation_history(actor_id);
	`

	securityTable := `
	CREATE TABLE IF NOT EXISTS security_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		pattern_id TEXT NOT NULL,
		family TEXT NOT NULL,
		severity TEXT DEFAULT 'medium',
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_actor ON security_alerts(actor_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_family ON security_alerts(family);
	`

	// Deliberations are keyed by the content fingerprint of the candidate
	// report; a terminal verdict for a fingerprint is never recomputed.
	reviewTables := `
	CREATE TABLE IF NOT EXISTS deliberations (
		fingerprint TEXT PRIMARY KEY,
		batch_seq INTEGER DEFAULT 0,
		verdict TEXT NOT NULL,
		verdict_json TEXT,
		model TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS publications (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		title TEXT,
		artifact_path TEXT DEFAULT '',
		status TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_publications_status ON publications(status);
	CREATE INDEX IF NOT EXISTS idx_publications_fp ON publications(fingerprint);

	CREATE TABLE IF NOT EXISTS publication_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		publication_id TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		note TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_publog_pub ON publication_log(publication_id);
	`

	batchTable := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		post_count INTEGER DEFAULT 0,
		comment_count INTEGER DEFAULT 0,
		skipped_count INTEGER DEFAULT 0
	);
	`

	for _, table := range []string{rawTables, interactionTable, memeTables, conflictTable, reputationTable, securityTable, reviewTables, batchTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ========== Batches ==========

// Batch identifies one ingestion/analysis cycle.
type Batch struct {
	ID           string
	Seq          int64
	StartedAt    time.Time
	CompletedAt  time.Time
	PostCount    int
	CommentCount int
	SkippedCount int
}

// BeginBatch allocates the next batch sequence number.
func (s *Store) BeginBatch(id string) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxSeq sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(seq) FROM batches").Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("failed to read batch sequence: %w", err)
	}
	seq := maxSeq.Int64 + 1

	if _, err := s.db.Exec(
		"INSERT INTO batches (id, seq) VALUES (?, ?)", id, seq,
	); err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}

	logging.Store("Batch %s started (seq=%d)", id, seq)
	return &Batch{ID: id, Seq: seq, StartedAt: time.Now().UTC()}, nil
}

// CompleteBatch records counters and the completion time for a batch.
func (s *Store) CompleteBatch(id string, posts, comments, skipped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE batches SET completed_at = CURRENT_TIMESTAMP,
		 post_count = ?, comment_count = ?, skipped_count = ? WHERE id = ?`,
		posts, comments, skipped, id,
	)
	return err
}

// LatestBatchSeq returns the highest allocated batch sequence, 0 if none.
func (s *Store) LatestBatchSeq() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxSeq sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(seq) FROM batches").Scan(&maxSeq); err != nil {
		return 0, err
	}
	return maxSeq.Int64, nil
}

// GetStats returns row counts per table.
func (s *Store) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{
		"posts", "comments", "actors", "interactions",
		"memes", "meme_occurrences", "conflicts", "reputation_history",
		"security_alerts", "deliberations", "publications", "publication_log",
		"batches",
	}

	for _, table := range tables {
		var count int64
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		stats[table] = count
	}

	return stats, nil
}

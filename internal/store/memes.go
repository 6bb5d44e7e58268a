package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Meme is a tracked phrase. Surfaced is set once the distinct-author count
// reaches the configured threshold; candidates below threshold are retained.
type Meme struct {
	ID              int64
	Phrase          string
	Category        string
	AuthorCount     int
	OccurrenceCount int
	FirstSeen       time.Time
	FirstAuthor     string
	Surfaced        bool
}

// MemeOccurrence records the first use of a phrase by an author.
type MemeOccurrence struct {
	Phrase   string
	AuthorID string
	ItemID   string
	SeenAt   time.Time
}

// RecordMemeOccurrence stores an author's first use of a phrase. Repeat use
// by the same author is ignored. Returns true if the occurrence was new.
func (s *Store) RecordMemeOccurrence(o *MemeOccurrence) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO meme_occurrences (phrase, author_id, item_id, seen_at)
		 VALUES (?, ?, ?, ?)`,
		o.Phrase, o.AuthorID, o.ItemID, o.SeenAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertMeme writes the rollup row for a phrase.
func (s *Store) UpsertMeme(m *Meme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	surfaced := 0
	if m.Surfaced {
		surfaced = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO memes (phrase, category, author_count, occurrence_count, first_seen, first_author, surfaced)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(phrase) DO UPDATE SET
		 category = excluded.category,
		 author_count = excluded.author_count,
		 occurrence_count = excluded.occurrence_count,
		 first_seen = excluded.first_seen,
		 first_author = excluded.first_author,
		 surfaced = excluded.surfaced`,
		m.Phrase, m.Category, m.AuthorCount, m.OccurrenceCount,
		m.FirstSeen.UTC(), m.FirstAuthor, surfaced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert meme %q: %w", m.Phrase, err)
	}
	return nil
}

// GetMeme retrieves a meme rollup by phrase.
func (s *Store) GetMeme(phrase string) (*Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &Meme{}
	var surfaced int
	err := s.db.QueryRow(
		`SELECT id, phrase, category, author_count, occurrence_count, first_seen, COALESCE(first_author, ''), surfaced
		 FROM memes WHERE phrase = ?`, phrase,
	).Scan(&m.ID, &m.Phrase, &m.Category, &m.AuthorCount, &m.OccurrenceCount,
		&m.FirstSeen, &m.FirstAuthor, &surfaced)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Surfaced = surfaced != 0
	return m, nil
}

// SurfacedMemes returns memes at or above the author threshold, most
// widespread first.
func (s *Store) SurfacedMemes() ([]Meme, error) {
	return s.queryMemes("WHERE surfaced = 1")
}

// AllMemes returns every tracked phrase including sub-threshold candidates.
func (s *Store) AllMemes() ([]Meme, error) {
	return s.queryMemes("")
}

func (s *Store) queryMemes(where string) ([]Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, phrase, category, author_count, occurrence_count, first_seen, COALESCE(first_author, ''), surfaced
		 FROM memes %s ORDER BY author_count DESC, phrase`, where))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memes []Meme
	for rows.Next() {
		var m Meme
		var surfaced int
		if err := rows.Scan(&m.ID, &m.Phrase, &m.Category, &m.AuthorCount,
			&m.OccurrenceCount, &m.FirstSeen, &m.FirstAuthor, &surfaced); err != nil {
			return nil, err
		}
		m.Surfaced = surfaced != 0
		memes = append(memes, m)
	}
	return memes, rows.Err()
}

// OccurrencesForPhrase returns all recorded first-uses of a phrase.
func (s *Store) OccurrencesForPhrase(phrase string) ([]MemeOccurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT phrase, author_id, COALESCE(item_id, ''), seen_at
		 FROM meme_occurrences WHERE phrase = ? ORDER BY seen_at, author_id`, phrase)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occs []MemeOccurrence
	for rows.Next() {
		var o MemeOccurrence
		if err := rows.Scan(&o.Phrase, &o.AuthorID, &o.ItemID, &o.SeenAt); err != nil {
			return nil, err
		}
		occs = append(occs, o)
	}
	return occs, rows.Err()
}

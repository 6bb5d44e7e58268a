package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Conflict states. Resolved and escalated are terminal.
const (
	ConflictActive    = "active"
	ConflictCooling   = "cooling"
	ConflictResolved  = "resolved"
	ConflictEscalated = "escalated"
)

// Conflict is one dispute lifecycle between a pair of actors over a topic.
// ActorA sorts lexicographically before ActorB.
type Conflict struct {
	ID            int64
	ActorA        string
	ActorB        string
	Topic         string
	State         string
	Intensity     int
	ExchangeCount int
	HostileStreak int
	LastBatch     int64
	LastRebutter  string
	Winner        string
	TopicMarkers  string
	OpenedAt      time.Time
	UpdatedAt     time.Time
	ClosedAt      time.Time
}

// Terminal reports whether the conflict can no longer change state.
func (c *Conflict) Terminal() bool {
	return c.State == ConflictResolved || c.State == ConflictEscalated
}

// OpenConflict creates a new active dispute row and returns its id.
func (s *Store) OpenConflict(c *Conflict) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO conflicts (actor_a, actor_b, topic, state, intensity, exchange_count,
		                        hostile_streak, last_batch, last_rebutter, topic_markers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ActorA, c.ActorB, c.Topic, ConflictActive, c.Intensity, c.ExchangeCount,
		c.HostileStreak, c.LastBatch, c.LastRebutter, c.TopicMarkers,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to open conflict: %w", err)
	}
	return res.LastInsertId()
}

// UpdateConflict writes mutable dispute fields. Terminal rows are never
// updated; callers open a new row for post-terminal recurrence.
func (s *Store) UpdateConflict(c *Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE conflicts SET state = ?, intensity = ?, exchange_count = ?,
		        hostile_streak = ?, last_batch = ?, last_rebutter = ?, winner = ?,
		        topic_markers = ?, updated_at = CURRENT_TIMESTAMP,
		        closed_at = CASE WHEN ? IN ('resolved', 'escalated') THEN CURRENT_TIMESTAMP ELSE closed_at END
		 WHERE id = ? AND state NOT IN ('resolved', 'escalated')`,
		c.State, c.Intensity, c.ExchangeCount, c.HostileStreak, c.LastBatch,
		c.LastRebutter, c.Winner, c.TopicMarkers, c.State, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conflict %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conflict %d is terminal or missing", c.ID)
	}
	return nil
}

// OpenConflictFor returns the non-terminal dispute for a pair and topic.
func (s *Store) OpenConflictFor(actorA, actorB, topic string) (*Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		conflictSelect+` WHERE actor_a = ? AND actor_b = ? AND topic = ?
		 AND state NOT IN ('resolved', 'escalated')
		 ORDER BY id DESC LIMIT 1`,
		actorA, actorB, topic,
	)
	return scanConflict(row)
}

// NonTerminalConflicts returns all disputes that can still change state.
func (s *Store) NonTerminalConflicts() ([]Conflict, error) {
	return s.queryConflicts(`WHERE state NOT IN ('resolved', 'escalated')`)
}

// AllConflicts returns every dispute row, oldest first.
func (s *Store) AllConflicts() ([]Conflict, error) {
	return s.queryConflicts("")
}

const conflictSelect = `
	SELECT id, actor_a, actor_b, topic, state, intensity, exchange_count,
	       hostile_streak, last_batch, COALESCE(last_rebutter, ''), COALESCE(winner, ''),
	       COALESCE(topic_markers, ''), opened_at, updated_at, COALESCE(closed_at, opened_at)
	FROM conflicts`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConflict(row rowScanner) (*Conflict, error) {
	c := &Conflict{}
	err := row.Scan(&c.ID, &c.ActorA, &c.ActorB, &c.Topic, &c.State, &c.Intensity,
		&c.ExchangeCount, &c.HostileStreak, &c.LastBatch, &c.LastRebutter,
		&c.Winner, &c.TopicMarkers, &c.OpenedAt, &c.UpdatedAt, &c.ClosedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) queryConflicts(where string) ([]Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(conflictSelect + " " + where + " ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ReputationEntry is one actor's score for one batch. Shock is derived by
// comparing adjacent batches at read time, never stored.
type ReputationEntry struct {
	ActorID     string
	BatchSeq    int64
	Score       float64
	Engagement  float64
	Influence   float64
	Consistency float64
	Controversy float64
	Tier        string
	CreatedAt   time.Time
}

// RecordReputation writes one actor's score for a batch. A second write for
// the same (actor, batch) replaces the row, keeping the table one row per
// actor per batch.
func (s *Store) RecordReputation(e *ReputationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO reputation_history (actor_id, batch_seq, score, engagement, influence, consistency, controversy, tier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(actor_id, batch_seq) DO UPDATE SET
		 score = excluded.score,
		 engagement = excluded.engagement,
		 influence = excluded.influence,
		 consistency = excluded.consistency,
		 controversy = excluded.controversy,
		 tier = excluded.tier`,
		e.ActorID, e.BatchSeq, e.Score, e.Engagement, e.Influence,
		e.Consistency, e.Controversy, e.Tier,
	)
	if err != nil {
		return fmt.Errorf("failed to record reputation for %s: %w", e.ActorID, err)
	}
	return nil
}

// LatestReputation returns an actor's most recent score.
func (s *Store) LatestReputation(actorID string) (*ReputationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := &ReputationEntry{}
	err := s.db.QueryRow(
		`SELECT actor_id, batch_seq, score, engagement, influence, consistency, controversy, tier, created_at
		 FROM reputation_history WHERE actor_id = ? ORDER BY batch_seq DESC LIMIT 1`,
		actorID,
	).Scan(&e.ActorID, &e.BatchSeq, &e.Score, &e.Engagement, &e.Influence,
		&e.Consistency, &e.Controversy, &e.Tier, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ReputationForBatch returns all scores recorded for a batch, highest first.
func (s *Store) ReputationForBatch(batchSeq int64) ([]ReputationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT actor_id, batch_seq, score, engagement, influence, consistency, controversy, tier, created_at
		 FROM reputation_history WHERE batch_seq = ? ORDER BY score DESC, actor_id`,
		batchSeq,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ReputationEntry
	for rows.Next() {
		var e ReputationEntry
		if err := rows.Scan(&e.ActorID, &e.BatchSeq, &e.Score, &e.Engagement,
			&e.Influence, &e.Consistency, &e.Controversy, &e.Tier, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReputationHistory returns an actor's full score trajectory, oldest first.
func (s *Store) ReputationHistory(actorID string) ([]ReputationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT actor_id, batch_seq, score, engagement, influence, consistency, controversy, tier, created_at
		 FROM reputation_history WHERE actor_id = ? ORDER BY batch_seq`,
		actorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ReputationEntry
	for rows.Next() {
		var e ReputationEntry
		if err := rows.Scan(&e.ActorID, &e.BatchSeq, &e.Score, &e.Engagement,
			&e.Influence, &e.Consistency, &e.Controversy, &e.Tier, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

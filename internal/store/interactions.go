package store

import "fmt"

// Interaction kinds.
const (
	KindReply   = "reply"
	KindMention = "mention"
)

// Interaction is a directed weighted edge between two actors. Self-edges
// (self-replies, self-mentions) are legal and kept.
type Interaction struct {
	From   string
	To     string
	Kind   string
	Weight int
}

// RecordInteraction increments the weight of the (from, to, kind) edge,
// creating it at weight 1 if missing.
func (s *Store) RecordInteraction(from, to, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO interactions (author_from, author_to, kind, weight, updated_at)
		 VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(author_from, author_to, kind) DO UPDATE SET
		 weight = weight + 1,
		 updated_at = CURRENT_TIMESTAMP`,
		from, to, kind,
	)
	if err != nil {
		return fmt.Errorf("failed to record interaction %s->%s (%s): %w", from, to, kind, err)
	}
	return nil
}

// AllInteractions returns every edge ordered for deterministic output.
func (s *Store) AllInteractions() ([]Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT author_from, author_to, kind, weight
		 FROM interactions ORDER BY author_from, author_to, kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Interaction
	for rows.Next() {
		var e Interaction
		if err := rows.Scan(&e.From, &e.To, &e.Kind, &e.Weight); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ReplaceInteractions rebuilds the interactions table from a computed edge
// set inside one transaction. The graph builder derives edges from the full
// snapshot, so a rebuild keeps weights exact across re-runs.
func (s *Store) ReplaceInteractions(edges []Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM interactions"); err != nil {
		return fmt.Errorf("failed to clear interactions: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO interactions (author_from, author_to, kind, weight) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.Exec(e.From, e.To, e.Kind, e.Weight); err != nil {
			return fmt.Errorf("failed to insert edge %s->%s: %w", e.From, e.To, err)
		}
	}

	return tx.Commit()
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Deliberation verdicts. Approved and rejected are terminal; failed cycles
// may be re-deliberated on a later run.
const (
	VerdictApproved = "approved"
	VerdictRejected = "rejected"
	VerdictFailed   = "failed"
)

// Publication statuses.
const (
	StatusPendingReview  = "pending_review"
	StatusInDeliberation = "in_deliberation"
	StatusApproved       = "approved"
	StatusRejected       = "rejected"
	StatusPublished      = "published"
	StatusFailed         = "failed"
)

// Deliberation is the council outcome for one content fingerprint.
type Deliberation struct {
	Fingerprint string
	BatchSeq    int64
	Verdict     string
	VerdictJSON string
	Model       string
	Fallback    bool
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Terminal reports whether this fingerprint must never be re-deliberated.
func (d *Deliberation) Terminal() bool {
	return d.Verdict == VerdictApproved || d.Verdict == VerdictRejected
}

// GetDeliberation retrieves the deliberation for a fingerprint.
func (s *Store) GetDeliberation(fingerprint string) (*Deliberation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := &Deliberation{}
	var fallback int
	err := s.db.QueryRow(
		`SELECT fingerprint, batch_seq, verdict, COALESCE(verdict_json, ''), COALESCE(model, ''),
		        COALESCE(fallback, 0), created_at, COALESCE(completed_at, created_at)
		 FROM deliberations WHERE fingerprint = ?`, fingerprint,
	).Scan(&d.Fingerprint, &d.BatchSeq, &d.Verdict, &d.VerdictJSON, &d.Model,
		&fallback, &d.CreatedAt, &d.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Fallback = fallback != 0
	return d, nil
}

// SaveDeliberation records the council outcome for a fingerprint. A later
// outcome replaces a failed one; terminal rows are left untouched so a
// fingerprint can have at most one terminal deliberation.
func (s *Store) SaveDeliberation(d *Deliberation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fallback := 0
	if d.Fallback {
		fallback = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO deliberations (fingerprint, batch_seq, verdict, verdict_json, model, fallback, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		 batch_seq = excluded.batch_seq,
		 verdict = excluded.verdict,
		 verdict_json = excluded.verdict_json,
		 model = excluded.model,
		 fallback = excluded.fallback,
		 completed_at = CURRENT_TIMESTAMP
		 WHERE deliberations.verdict NOT IN ('approved', 'rejected')`,
		d.Fingerprint, d.BatchSeq, d.Verdict, d.VerdictJSON, d.Model, fallback,
	)
	if err != nil {
		return fmt.Errorf("failed to save deliberation: %w", err)
	}
	return nil
}

// Publication is one queued artifact tracked through the status machine.
type Publication struct {
	ID           string
	Fingerprint  string
	Title        string
	ArtifactPath string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicationLogEntry is one audit row for a status transition.
type PublicationLogEntry struct {
	ID            int64
	PublicationID string
	FromStatus    string
	ToStatus      string
	Note          string
	CreatedAt     time.Time
}

// EnqueuePublication inserts a publication in pending_review with its
// initial audit row, atomically.
func (s *Store) EnqueuePublication(p *Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO publications (id, fingerprint, title, status) VALUES (?, ?, ?, ?)`,
		p.ID, p.Fingerprint, p.Title, StatusPendingReview,
	); err != nil {
		return fmt.Errorf("failed to enqueue publication: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO publication_log (publication_id, from_status, to_status, note)
		 VALUES (?, '', ?, 'submitted')`,
		p.ID, StatusPendingReview,
	); err != nil {
		return fmt.Errorf("failed to log enqueue: %w", err)
	}

	return tx.Commit()
}

// TransitionPublication moves a publication from one status to another and
// writes the audit row in the same transaction. The move fails if the row is
// not currently in the expected status.
func (s *Store) TransitionPublication(id, from, to, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE publications SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to transition publication %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("publication %s is not in status %q", id, from)
	}

	if _, err := tx.Exec(
		`INSERT INTO publication_log (publication_id, from_status, to_status, note)
		 VALUES (?, ?, ?, ?)`,
		id, from, to, note,
	); err != nil {
		return fmt.Errorf("failed to log transition: %w", err)
	}

	return tx.Commit()
}

// SetArtifactPath records where the published artifact landed.
func (s *Store) SetArtifactPath(id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE publications SET artifact_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		path, id,
	)
	return err
}

// GetPublication retrieves a publication by id.
func (s *Store) GetPublication(id string) (*Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &Publication{}
	err := s.db.QueryRow(
		`SELECT id, fingerprint, COALESCE(title, ''), COALESCE(artifact_path, ''), status, created_at, updated_at
		 FROM publications WHERE id = ?`, id,
	).Scan(&p.ID, &p.Fingerprint, &p.Title, &p.ArtifactPath, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PublicationsByStatus lists publications in a given status, oldest first.
func (s *Store) PublicationsByStatus(status string) ([]Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, fingerprint, COALESCE(title, ''), COALESCE(artifact_path, ''), status, created_at, updated_at
		 FROM publications WHERE status = ? ORDER BY created_at, id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pubs []Publication
	for rows.Next() {
		var p Publication
		if err := rows.Scan(&p.ID, &p.Fingerprint, &p.Title, &p.ArtifactPath,
			&p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, rows.Err()
}

// PublicationLog returns the audit trail for one publication, oldest first.
func (s *Store) PublicationLog(publicationID string) ([]PublicationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, publication_id, COALESCE(from_status, ''), to_status, COALESCE(note, ''), created_at
		 FROM publication_log WHERE publication_id = ? ORDER BY id`, publicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PublicationLogEntry
	for rows.Next() {
		var e PublicationLogEntry
		if err := rows.Scan(&e.ID, &e.PublicationID, &e.FromStatus, &e.ToStatus,
			&e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

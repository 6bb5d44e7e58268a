package store

import (
	"fmt"
	"time"
)

// SecurityAlert flags one item that matched a signature.
type SecurityAlert struct {
	ID        int64
	ItemID    string
	ActorID   string
	PatternID string
	Family    string
	Severity  string
	Detail    string
	CreatedAt time.Time
}

// RecordAlert stores a security alert.
func (s *Store) RecordAlert(a *SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO security_alerts (item_id, actor_id, pattern_id, family, severity, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ItemID, a.ActorID, a.PatternID, a.Family, a.Severity, a.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// AlertsForActor returns all alerts attributed to one actor.
func (s *Store) AlertsForActor(actorID string) ([]SecurityAlert, error) {
	return s.queryAlerts("WHERE actor_id = ?", actorID)
}

// AllAlerts returns every recorded alert, oldest first.
func (s *Store) AllAlerts() ([]SecurityAlert, error) {
	return s.queryAlerts("")
}

func (s *Store) queryAlerts(where string, args ...interface{}) ([]SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, item_id, actor_id, pattern_id, family, severity, COALESCE(detail, ''), created_at
		 FROM security_alerts `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []SecurityAlert
	for rows.Next() {
		var a SecurityAlert
		if err := rows.Scan(&a.ID, &a.ItemID, &a.ActorID, &a.PatternID,
			&a.Family, &a.Severity, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AttemptCounts returns per-actor alert counts for campaign escalation.
func (s *Store) AttemptCounts() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT actor_id, COUNT(*) FROM security_alerts GROUP BY actor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var actor string
		var n int
		if err := rows.Scan(&actor, &n); err != nil {
			return nil, err
		}
		counts[actor] = n
	}
	return counts, rows.Err()
}

// ClustersByFamily groups alerted actors under each signature family.
func (s *Store) ClustersByFamily() (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT DISTINCT family, actor_id FROM security_alerts ORDER BY family, actor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clusters := make(map[string][]string)
	for rows.Next() {
		var family, actor string
		if err := rows.Scan(&family, &actor); err != nil {
			return nil, err
		}
		clusters[family] = append(clusters[family], actor)
	}
	return clusters, rows.Err()
}

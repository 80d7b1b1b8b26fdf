package db

import "fmt"

// RecordAuthEvent stores one aggregate auth event (login.success,
// login.failed, logout). Credentials are never written here.
func (s *Store) RecordAuthEvent(action, ip string) error {
	_, err := s.db.Exec(`INSERT INTO auth_events(action, ip) VALUES (?, ?)`, action, ip)
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

func (s *Store) ListAuthEvents(limit int) ([]AuthEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, action, ip, created_at FROM auth_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()
	events := make([]AuthEvent, 0, limit)
	for rows.Next() {
		var e AuthEvent
		if err := rows.Scan(&e.ID, &e.Action, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

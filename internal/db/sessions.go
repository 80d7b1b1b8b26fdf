package db

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateSession(sess Session) error {
	authed := 0
	if sess.Authenticated {
		authed = 1
	}
	_, err := s.db.Exec(`INSERT INTO sessions(token, authenticated, csrf_token, ip, user_agent, expires_at, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		sess.Token, authed, sess.CSRFToken, sess.IP, sess.UserAgent, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns the session for token. Expired sessions are deleted
// on read and reported as sql.ErrNoRows.
func (s *Store) GetSession(token string) (Session, error) {
	var sess Session
	var authed int
	err := s.db.QueryRow(`SELECT token, authenticated, csrf_token, ip, user_agent, expires_at, created_at, last_seen_at
		FROM sessions WHERE token = ?`, token).
		Scan(&sess.Token, &authed, &sess.CSRFToken, &sess.IP, &sess.UserAgent, &sess.ExpiresAt, &sess.CreatedAt, &sess.LastSeenAt)
	if err != nil {
		return Session{}, err
	}
	sess.Authenticated = authed == 1
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteSession(token)
		return Session{}, sql.ErrNoRows
	}
	return sess, nil
}

func (s *Store) TouchSession(token string, expiresAt time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET expires_at = ?, last_seen_at = CURRENT_TIMESTAMP WHERE token = ?`, expiresAt, token)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// RotateSession atomically replaces the session identified by oldToken
// with newSession. Login uses this so an attacker-planted pre-login token
// never survives authentication.
func (s *Store) RotateSession(oldToken string, newSession Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM sessions WHERE token = ?`, oldToken); err != nil {
		return err
	}
	authed := 0
	if newSession.Authenticated {
		authed = 1
	}
	if _, err := tx.Exec(`INSERT INTO sessions(token, authenticated, csrf_token, ip, user_agent, expires_at, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		newSession.Token, authed, newSession.CSRFToken, newSession.IP, newSession.UserAgent, newSession.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}

package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	sess := Session{
		Token:     "tok-1",
		CSRFToken: "csrf-1",
		IP:        "192.168.1.20",
		UserAgent: "test",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := s.GetSession("tok-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Authenticated {
		t.Fatal("new session must not be authenticated")
	}
	if got.CSRFToken != "csrf-1" {
		t.Fatalf("csrf token = %q, want csrf-1", got.CSRFToken)
	}

	authed := Session{
		Token:         "tok-2",
		Authenticated: true,
		CSRFToken:     "csrf-2",
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	if err := s.RotateSession("tok-1", authed); err != nil {
		t.Fatalf("rotate session: %v", err)
	}
	if _, err := s.GetSession("tok-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("rotated-away token still resolves: %v", err)
	}
	got, err = s.GetSession("tok-2")
	if err != nil {
		t.Fatalf("get rotated session: %v", err)
	}
	if !got.Authenticated {
		t.Fatal("rotated session must be authenticated")
	}

	if err := s.DeleteSession("tok-2"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetSession("tok-2"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("deleted token still resolves: %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	s := openTestStore(t)
	sess := Session{
		Token:         "stale",
		Authenticated: true,
		CSRFToken:     "csrf",
		ExpiresAt:     time.Now().Add(-time.Minute),
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.GetSession("stale"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expired session must read as missing, got %v", err)
	}
}

func TestLoginThrottling(t *testing.T) {
	s := openTestStore(t)
	const key = "10.0.0.5|flix"

	locked, _, err := s.CheckLoginAllowed(key)
	if err != nil || locked {
		t.Fatalf("fresh key locked=%v err=%v", locked, err)
	}
	for i := 0; i < 4; i++ {
		if d, err := s.RegisterFailedLogin(key); err != nil || d != 0 {
			t.Fatalf("failure %d: lock=%v err=%v", i+1, d, err)
		}
	}
	d, err := s.RegisterFailedLogin(key)
	if err != nil {
		t.Fatalf("fifth failure: %v", err)
	}
	if d != time.Minute {
		t.Fatalf("fifth failure lock = %v, want 1m", d)
	}
	locked, retry, err := s.CheckLoginAllowed(key)
	if err != nil {
		t.Fatalf("check after lock: %v", err)
	}
	if !locked || retry <= 0 {
		t.Fatalf("expected active lockout, locked=%v retry=%v", locked, retry)
	}

	if err := s.ResetLoginAttempts(key); err != nil {
		t.Fatalf("reset attempts: %v", err)
	}
	locked, _, err = s.CheckLoginAllowed(key)
	if err != nil || locked {
		t.Fatalf("reset key locked=%v err=%v", locked, err)
	}
}

func TestAuthEvents(t *testing.T) {
	s := openTestStore(t)
	for _, action := range []string{"login.failed", "login.success", "logout"} {
		if err := s.RecordAuthEvent(action, "192.168.1.30"); err != nil {
			t.Fatalf("record %s: %v", action, err)
		}
	}
	events, err := s.ListAuthEvents(10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Action != "logout" {
		t.Fatalf("newest event = %s, want logout", events[0].Action)
	}
}

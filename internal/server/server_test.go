package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"homeflix/internal/auth"
	"homeflix/internal/db"
)

const (
	testUser = "flix"
	testPass = "opensesame123"
)

// testHash is derived once per test binary; the KDF is too expensive to
// rerun for every subtest.
var testHash = func() string {
	h, err := auth.HashPassword(testPass)
	if err != nil {
		panic(err)
	}
	return h
}()

type testApp struct {
	app   *App
	store *db.Store
	root  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	root := t.TempDir()
	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	opts := Options{
		RootDir:      root,
		Bind:         "127.0.0.1",
		Port:         8080,
		Username:     testUser,
		PasswordHash: testHash,
		Version:      "test",
	}
	app, err := New(opts, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testApp{app: app, store: store, root: root}
}

// authedCookie plants an authenticated session directly in the store and
// returns its cookie, bypassing the login form.
func (ta *testApp) authedCookie(t *testing.T) *http.Cookie {
	t.Helper()
	sess := db.Session{
		Token:         "test-authed-" + t.Name(),
		Authenticated: true,
		CSRFToken:     "test-csrf",
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	if err := ta.store.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: sess.Token}
}

// anonCookie plants an unauthenticated session with a known CSRF token.
func (ta *testApp) anonCookie(t *testing.T) *http.Cookie {
	t.Helper()
	sess := db.Session{
		Token:     "test-anon-" + t.Name(),
		CSRFToken: "test-csrf",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := ta.store.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: sess.Token}
}

func (ta *testApp) do(t *testing.T, method, target string, cookie *http.Cookie, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rec, req)
	return rec
}

func (ta *testApp) writeFile(t *testing.T, rel string, content []byte) {
	t.Helper()
	abs := filepath.Join(ta.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func (ta *testApp) mkdir(t *testing.T, rel string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(ta.root, filepath.FromSlash(rel)), 0o755); err != nil {
		t.Fatal(err)
	}
}

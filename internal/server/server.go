// Package server is the HTTP surface of homeflix: directory listing, file
// download and range streaming over a single sandboxed root, all gated
// behind a session check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"homeflix/internal/db"
	"homeflix/internal/util"
	"homeflix/internal/webui"
)

const (
	sessionCookieName = "homeflix_session"
	anonTTL           = 24 * time.Hour
	authTTL           = 12 * time.Hour
)

type ctxKey string

const ctxSessionKey ctxKey = "session"

// Sessions is the session-store dependency injected into the request
// pipeline. *db.Store satisfies it.
type Sessions interface {
	CreateSession(sess db.Session) error
	GetSession(token string) (db.Session, error)
	TouchSession(token string, expiresAt time.Time) error
	RotateSession(oldToken string, sess db.Session) error
	DeleteSession(token string) error
	CheckLoginAllowed(key string) (locked bool, retryAfter time.Duration, err error)
	RegisterFailedLogin(key string) (time.Duration, error)
	ResetLoginAttempts(key string) error
	RecordAuthEvent(action, ip string) error
}

type App struct {
	opts      Options
	sessions  Sessions
	logger    *slog.Logger
	templates *template.Template
	static    http.Handler
	rootAbs   string
}

// New builds an App serving opts.RootDir. The root is resolved once here
// and never changes for the process lifetime.
func New(opts Options, sessions Sessions, logger *slog.Logger) (*App, error) {
	rootAbs, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root dir: %w", err)
	}
	info, err := os.Stat(rootAbs)
	if err != nil {
		return nil, fmt.Errorf("stat root dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", rootAbs)
	}

	tmpl, err := template.ParseFS(webui.FS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	staticFS, err := fs.Sub(webui.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("open static fs: %w", err)
	}

	return &App{
		opts:      opts,
		sessions:  sessions,
		logger:    logger,
		templates: tmpl,
		static:    http.FileServer(http.FS(staticFS)),
		rootAbs:   rootAbs,
	}, nil
}

// Run opens the session store, serves until ctx is cancelled, then drains.
func Run(ctx context.Context, opts Options) error {
	store, err := db.Open(opts.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	_ = store.PurgeExpiredSessions()

	handlerLevel := new(slog.LevelVar)
	handlerLevel.Set(parseLogLevel(opts.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: handlerLevel}))

	app, err := New(opts, store, logger)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(opts.Bind, strconv.Itoa(opts.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if opts.HTTPS {
			errCh <- httpServer.ListenAndServeTLS(opts.CertFile, opts.KeyFile)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("serving", "root", app.rootAbs, "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler assembles the route table and middleware chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", a.static))
	mux.HandleFunc("/", a.handleIndex)
	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/logout", a.handleLogout)
	mux.HandleFunc("/api/me", a.handleMe)
	mux.HandleFunc("/api/files", a.handleFiles)
	mux.HandleFunc("/api/download", a.handleDownload)
	mux.HandleFunc("/stream/", a.handleStream)
	return a.recoverer(a.securityHeaders(a.sessionMiddleware(mux)))
}

func (a *App) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; media-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; form-action 'self'")
		next.ServeHTTP(w, r)
	})
}

func (a *App) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware guarantees every request carries a session: either the
// one named by the cookie or a fresh anonymous one. Authenticated sessions
// slide their expiry on use.
func (a *App) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			token = cookie.Value
		}
		session, err := a.sessions.GetSession(token)
		if err != nil {
			session, err = a.newAnonymousSession(r)
			if err == nil {
				err = a.sessions.CreateSession(session)
			}
			if err != nil {
				a.logger.Error("session create failed", "error", err)
				a.writeError(w, http.StatusInternalServerError, "session failure")
				return
			}
			a.setSessionCookie(w, session)
		} else {
			ttl := anonTTL
			if session.Authenticated {
				ttl = authTTL
			}
			session.ExpiresAt = time.Now().Add(ttl)
			_ = a.sessions.TouchSession(session.Token, session.ExpiresAt)
			a.setSessionCookie(w, session)
		}
		ctx := context.WithValue(r.Context(), ctxSessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *App) newAnonymousSession(r *http.Request) (db.Session, error) {
	token, err := util.RandomToken(32)
	if err != nil {
		return db.Session{}, err
	}
	csrf, err := util.RandomToken(24)
	if err != nil {
		return db.Session{}, err
	}
	return db.Session{
		Token:     token,
		CSRFToken: csrf,
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
		ExpiresAt: time.Now().Add(anonTTL),
	}, nil
}

func (a *App) currentSession(r *http.Request) db.Session {
	s, _ := r.Context().Value(ctxSessionKey).(db.Session)
	return s
}

// requireAuth gates a handler on an authenticated session. Data requests
// get a machine-readable 401; browser navigation goes to the login page.
func (a *App) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if a.currentSession(r).Authenticated {
		return true
	}
	if isDataRequest(r) {
		a.writeError(w, http.StatusUnauthorized, "authentication required")
	} else {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	return false
}

func isDataRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/stream/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (a *App) enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (a *App) verifyCSRF(w http.ResponseWriter, r *http.Request) bool {
	session := a.currentSession(r)
	_ = r.ParseForm()
	provided := strings.TrimSpace(r.FormValue("_csrf"))
	if provided == "" {
		provided = strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	}
	if provided == "" || session.CSRFToken == "" || provided != session.CSRFToken {
		a.writeError(w, http.StatusForbidden, "csrf validation failed")
		return false
	}
	return true
}

func (a *App) setSessionCookie(w http.ResponseWriter, session db.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   a.opts.HTTPS,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.HTTPS,
		SameSite: http.SameSiteLaxMode,
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (a *App) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (a *App) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]any{"error": message})
}

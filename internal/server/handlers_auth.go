package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"homeflix/internal/auth"
	"homeflix/internal/db"
	"homeflix/internal/util"
)

// handleIndex serves the browser bundle to authenticated sessions and
// falls back to the login page otherwise. Any unmatched path lands here,
// so client-side routes resolve to the same page.
func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !a.requireAuth(w, r) {
		return
	}
	data := map[string]any{"Version": a.opts.Version}
	if err := a.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		a.writeError(w, http.StatusInternalServerError, "render failed")
	}
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	session := a.currentSession(r)
	if r.Method == http.MethodGet {
		if session.Authenticated {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		_ = a.templates.ExecuteTemplate(w, "login.html", map[string]any{
			"CSRFToken": session.CSRFToken,
		})
		return
	}
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		a.renderLoginError(w, session.CSRFToken, "username and password are required")
		return
	}

	ip := remoteIP(r)
	key := fmt.Sprintf("%s|%s", ip, username)
	locked, retryAfter, err := a.sessions.CheckLoginAllowed(key)
	if err == nil && locked {
		a.renderLoginError(w, session.CSRFToken, fmt.Sprintf("too many attempts, retry in %s", retryAfter.Round(time.Second)))
		return
	}

	// Both checks always run so a bad username costs the same time as a
	// bad password; the failure message never says which one it was.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.opts.Username)) == 1
	passOK, err := auth.VerifyPassword(a.opts.PasswordHash, password)
	if err != nil || !userOK || !passOK {
		lock, _ := a.sessions.RegisterFailedLogin(key)
		_ = a.sessions.RecordAuthEvent("login.failed", ip)
		a.logger.Warn("login failed", "ip", ip)
		msg := "invalid credentials"
		if lock > 0 {
			msg = fmt.Sprintf("invalid credentials. locked for %s", lock.Round(time.Second))
		}
		a.renderLoginError(w, session.CSRFToken, msg)
		return
	}
	_ = a.sessions.ResetLoginAttempts(key)

	token, err := util.RandomToken(32)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "session failure")
		return
	}
	csrf, err := util.RandomToken(24)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "session failure")
		return
	}
	authed := db.Session{
		Token:         token,
		Authenticated: true,
		CSRFToken:     csrf,
		IP:            ip,
		UserAgent:     r.UserAgent(),
		ExpiresAt:     time.Now().Add(authTTL),
	}
	if err := a.sessions.RotateSession(session.Token, authed); err != nil {
		a.writeError(w, http.StatusInternalServerError, "session failure")
		return
	}
	a.setSessionCookie(w, authed)
	_ = a.sessions.RecordAuthEvent("login.success", ip)
	a.logger.Info("login", "ip", ip)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) renderLoginError(w http.ResponseWriter, csrfToken, message string) {
	w.WriteHeader(http.StatusUnauthorized)
	_ = a.templates.ExecuteTemplate(w, "login.html", map[string]any{
		"CSRFToken": csrfToken,
		"Error":     message,
	})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !a.enforceMethod(w, r, http.MethodGet) {
		return
	}
	if !a.requireAuth(w, r) {
		return
	}
	session := a.currentSession(r)
	_ = a.sessions.DeleteSession(session.Token)
	a.clearSessionCookie(w)
	_ = a.sessions.RecordAuthEvent("logout", remoteIP(r))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleMe lets the frontend discover its session state and CSRF token.
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	if !a.enforceMethod(w, r, http.MethodGet) {
		return
	}
	session := a.currentSession(r)
	payload := map[string]any{
		"authenticated": session.Authenticated,
		"csrfToken":     session.CSRFToken,
	}
	if session.Authenticated {
		payload["username"] = a.opts.Username
	}
	a.writeJSON(w, http.StatusOK, payload)
}

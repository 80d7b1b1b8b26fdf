package db

import "time"

// Session is one browser session. Authenticated flips to true only after
// a successful login; everything else about the record is bookkeeping.
type Session struct {
	Token         string    `json:"token"`
	Authenticated bool      `json:"authenticated"`
	CSRFToken     string    `json:"csrf_token"`
	IP            string    `json:"ip"`
	UserAgent     string    `json:"user_agent"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

type AuthEvent struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

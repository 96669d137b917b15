// Package session owns the access-token lifecycle: it decides when to reuse
// the persisted token and when to refresh it, and it is the only place that
// mutates the persisted session state.
package session

import "time"

// Session is the client-side view of an authenticated session. If
// AccessToken is set, ExpiresAt is set and marks the instant after which the
// token must be treated as invalid regardless of server-side truth.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	UserID      string // cached, lazily fetched
}

// Valid reports whether the session carries a token that is still usable at
// the given instant.
func (s Session) Valid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// Credentials are the login inputs.
type Credentials struct {
	Email    string
	Password string
}

// ClientContext carries per-client request context the backend wants on
// login and refresh calls.
type ClientContext struct {
	UserAgent string
}

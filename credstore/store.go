// Package credstore persists the client's session state across restarts.
// It wraps whatever key-value storage is available behind a narrow Storage
// interface; all values are plain strings.
package credstore

// Keys under which the session state is persisted. The three entries are
// written independently but cleared as a unit on logout.
const (
	KeyAuthToken = "auth_token"
	KeyExpiresAt = "expires_at"
	KeyUserID    = "user_id"
)

// Storage is the persistence boundary for session state.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

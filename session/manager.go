package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vetkas2023/smart-fridge-frontend/credstore"
	"github.com/vetkas2023/smart-fridge-frontend/gateway"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ErrUnauthenticated means there is no usable session; the caller must go
// through the login flow. The wrapped reason distinguishes why.
var (
	ErrUnauthenticated = errors.New("unauthenticated")

	// Reasons wrapped under ErrUnauthenticated.
	ErrNoSession     = errors.New("no persisted session")
	ErrRefreshFailed = errors.New("token refresh failed")
	ErrCorruptState  = errors.New("corrupt persisted session")
)

// AuthAPI is the slice of the gateway the manager needs.
type AuthAPI interface {
	Login(ctx context.Context, req gateway.LoginRequest, userAgent string) (*gateway.TokenResponse, error)
	RefreshTokens(ctx context.Context, userAgent string) (*gateway.TokenResponse, error)
	Logout(ctx context.Context) error
	GetMe(ctx context.Context) (*gateway.User, error)
}

var _ gateway.TokenSource = (*Manager)(nil)

// Manager owns the persisted session. It implements gateway.TokenSource.
type Manager struct {
	store   credstore.Storage
	api     AuthAPI
	logger  zerolog.Logger
	nowTime func() time.Time
	cc      ClientContext

	// refreshGroup collapses concurrent expired-token observers onto a
	// single refresh call; every waiter gets the same result.
	refreshGroup singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// WithLogger sets the manager's logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClientContext sets the context used for refreshes the manager
// initiates on its own from GetValidToken.
func WithClientContext(cc ClientContext) ManagerOption {
	return func(m *Manager) { m.cc = cc }
}

// New initializes a Manager with required dependencies.
func New(store credstore.Storage, api AuthAPI, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}
	if api == nil {
		return nil, errors.New("[session.New] api is required")
	}

	m := &Manager{
		store:   store,
		api:     api,
		logger:  zerolog.Nop(),
		nowTime: NowTimeFunc,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// GetValidToken returns a currently-valid bearer token, refreshing first
// when the persisted one has expired. A refresh failure clears the session
// and forces re-login.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	sess, err := m.loadSession()
	if err != nil {
		m.logger.Warn().Err(err).Msg("clearing corrupt persisted session")
		m.clearSession()
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, ErrCorruptState)
	}
	if sess.AccessToken == "" {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, ErrNoSession)
	}
	if sess.Valid(m.nowTime()) {
		return sess.AccessToken, nil
	}

	token, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		refreshed, err := m.Refresh(ctx, m.cc)
		if err != nil {
			return nil, err
		}
		return refreshed.AccessToken, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Abandonment, not failure: the refresh credential is still
			// good, so keep the session for the next attempt.
			return "", err
		}
		m.clearSession()
		return "", fmt.Errorf("%w: %w: %v", ErrUnauthenticated, ErrRefreshFailed, err)
	}
	return token.(string), nil
}

// Login authenticates and persists the resulting session. On failure
// nothing is persisted.
func (m *Manager) Login(ctx context.Context, creds Credentials, cc ClientContext) (*Session, error) {
	resp, err := m.api.Login(ctx, gateway.LoginRequest{Email: creds.Email, Password: creds.Password}, cc.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	sess, err := m.storeTokens(resp)
	if err != nil {
		return nil, err
	}
	m.logger.Info().Time("expires_at", sess.ExpiresAt).Msg("logged in")
	return sess, nil
}

// Refresh mints a new access token using the ambient refresh credential and
// overwrites the persisted token and expiry. On failure the session is left
// as-is; the caller decides whether to clear it.
func (m *Manager) Refresh(ctx context.Context, cc ClientContext) (*Session, error) {
	resp, err := m.api.RefreshTokens(ctx, cc.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}
	sess, err := m.storeTokens(resp)
	if err != nil {
		return nil, err
	}
	m.logger.Debug().Time("expires_at", sess.ExpiresAt).Msg("access token refreshed")
	return sess, nil
}

// Logout revokes the session server-side on a best-effort basis and then
// unconditionally clears the persisted session.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("server-side logout failed; clearing local session anyway")
	}
	return m.clearSession()
}

// CachedUserID returns the persisted user id, fetching and persisting it on
// first use. The cached value is never re-validated against the server.
func (m *Manager) CachedUserID(ctx context.Context) (string, error) {
	if id, ok, err := m.store.Get(credstore.KeyUserID); err == nil && ok {
		return id, nil
	}
	user, err := m.api.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch user profile: %w", err)
	}
	id := strconv.FormatInt(user.ID, 10)
	if err := m.store.Set(credstore.KeyUserID, id); err != nil {
		return "", fmt.Errorf("persist user id: %w", err)
	}
	return id, nil
}

// storeTokens persists the token and its absolute expiry, computed once at
// issuance. The backend TTL is in minutes.
func (m *Manager) storeTokens(resp *gateway.TokenResponse) (*Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in response", ErrRefreshFailed)
	}
	expiresAt := m.nowTime().Add(time.Duration(resp.ExpiresInMinutes) * time.Minute)
	if err := m.store.Set(credstore.KeyAuthToken, resp.AccessToken); err != nil {
		return nil, fmt.Errorf("persist access token: %w", err)
	}
	if err := m.store.Set(credstore.KeyExpiresAt, expiresAt.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("persist token expiry: %w", err)
	}
	return &Session{AccessToken: resp.AccessToken, ExpiresAt: expiresAt}, nil
}

// loadSession reads the persisted state. A token without a parseable expiry
// is corrupt: the expiry invariant cannot be checked, so the session is
// unusable.
func (m *Manager) loadSession() (Session, error) {
	var sess Session

	token, ok, err := m.store.Get(credstore.KeyAuthToken)
	if err != nil {
		return Session{}, fmt.Errorf("read access token: %w", err)
	}
	if !ok {
		return Session{}, nil
	}
	sess.AccessToken = token

	rawExpiry, ok, err := m.store.Get(credstore.KeyExpiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("read token expiry: %w", err)
	}
	if !ok {
		return Session{}, errors.New("access token present without expiry")
	}
	sess.ExpiresAt, err = time.Parse(time.RFC3339, rawExpiry)
	if err != nil {
		return Session{}, fmt.Errorf("parse token expiry %q: %w", rawExpiry, err)
	}

	if id, ok, err := m.store.Get(credstore.KeyUserID); err == nil && ok {
		sess.UserID = id
	}
	return sess, nil
}

// clearSession removes all persisted session fields as a unit.
func (m *Manager) clearSession() error {
	var firstErr error
	for _, key := range []string{credstore.KeyAuthToken, credstore.KeyExpiresAt, credstore.KeyUserID} {
		if err := m.store.Remove(key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

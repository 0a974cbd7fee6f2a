package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTokenExpired is returned when a token's embedded expiry has passed
	ErrTokenExpired = errors.New("token expired")

	// ErrNotAuthenticated is returned by operations that need a session
	ErrNotAuthenticated = errors.New("not logged in")
)

// Session is the identity derived from the current access token
type Session struct {
	Token     string
	Subject   string
	Email     string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// IsAuthenticated reports whether a token is present and not expired at now
func (s Session) IsAuthenticated(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || s.ExpiresAt.After(now)
}

// Authenticator exchanges credentials for an access token
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password, name string) (string, error)
}

// Store owns the session lifecycle: ANONYMOUS becomes AUTHENTICATED through
// Login, Register, Adopt or a successful Hydrate, and goes back through
// Logout, a failed Hydrate or Invalidate. There are no other transitions.
type Store struct {
	mu      sync.RWMutex
	current Session
	persist TokenStore
	logger  *slog.Logger
	now     func() time.Time

	// onInvalidate runs after a forced logout cleared the session
	onInvalidate func()
}

// NewStore creates an anonymous session store backed by persist
func NewStore(persist TokenStore, logger *slog.Logger) *Store {
	return &Store{
		persist: persist,
		logger:  logger.With("component", "session"),
		now:     time.Now,
	}
}

// OnInvalidate registers a callback fired once per forced logout
func (s *Store) OnInvalidate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvalidate = fn
}

// Current returns a snapshot of the session
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether the current session is usable
func (s *Store) IsAuthenticated() bool {
	return s.Current().IsAuthenticated(s.now())
}

// Token returns the current access token, or "" when anonymous
func (s *Store) Token() string {
	return s.Current().Token
}

// Hydrate re-derives the session from the persisted token. An undecodable
// or expired token is cleared from storage and leaves the store anonymous.
// Hydrating the same token twice yields the same state.
func (s *Store) Hydrate(ctx context.Context) Session {
	token, err := s.persist.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load persisted token", "error", err)
		s.reset()
		return Session{}
	}
	if token == "" {
		s.reset()
		return Session{}
	}

	sess, err := sessionFromToken(token, s.now())
	if err != nil {
		s.logger.Info("discarding persisted token", "reason", err)
		if cerr := s.persist.Clear(ctx); cerr != nil {
			s.logger.Warn("failed to clear persisted token", "error", cerr)
		}
		s.reset()
		return Session{}
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.logger.Debug("session hydrated", "subject", sess.Subject, "expires_at", sess.ExpiresAt)
	return sess
}

// Login authenticates through auth and establishes the returned token.
// On failure the error is returned unchanged and the session is untouched.
func (s *Store) Login(ctx context.Context, auth Authenticator, email, password string) (Session, error) {
	token, err := auth.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.establish(ctx, token)
}

// Register creates an account through auth and establishes the returned token
func (s *Store) Register(ctx context.Context, auth Authenticator, email, password, name string) (Session, error) {
	token, err := auth.Register(ctx, email, password, name)
	if err != nil {
		return Session{}, err
	}
	return s.establish(ctx, token)
}

// Adopt establishes a token delivered out of band, such as the redirect
// at the end of a Google sign-in.
func (s *Store) Adopt(ctx context.Context, token string) (Session, error) {
	return s.establish(ctx, token)
}

func (s *Store) establish(ctx context.Context, token string) (Session, error) {
	sess, err := sessionFromToken(token, s.now())
	if err != nil {
		return Session{}, fmt.Errorf("unusable access token: %w", err)
	}
	if err := s.persist.Save(ctx, token); err != nil {
		return Session{}, fmt.Errorf("failed to persist token: %w", err)
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.logger.Info("logged in", "subject", sess.Subject, "email", sess.Email)
	return sess, nil
}

// Logout clears the persisted token and identity. It never fails.
func (s *Store) Logout(ctx context.Context) {
	if err := s.persist.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted token", "error", err)
	}
	s.reset()
	s.logger.Info("logged out")
}

// Invalidate performs a forced logout after the backend rejected token.
// Only the session that carried token is cleared, so any number of
// concurrent rejections of the same token clear it exactly once. It
// reports whether this call did the clearing.
func (s *Store) Invalidate(ctx context.Context, token string) bool {
	s.mu.Lock()
	if token == "" || s.current.Token != token {
		s.mu.Unlock()
		return false
	}
	s.current = Session{}
	// cleared under the lock so a concurrent login cannot be wiped
	if err := s.persist.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted token", "error", err)
	}
	fn := s.onInvalidate
	s.mu.Unlock()

	s.logger.Warn("session rejected by server, logged out")

	if fn != nil {
		fn()
	}
	return true
}

func (s *Store) reset() {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()
}

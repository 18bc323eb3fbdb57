package authflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Signer runs a sign-in flow. *Controller implements it.
type Signer interface {
	SignIn(ctx context.Context) SignInOutcome
}

// Store owns the process-wide AuthState. It is the only writer of
// {user, session, loading}; everything else reads through Current.
type Store struct {
	backend     Backend
	establisher *SessionEstablisher
	logger      *logrus.Logger

	mu           sync.RWMutex
	user         *UserIdentity
	session      *Session
	initializing bool // True until the first refresh settles
	refreshing   int  // In-flight Refresh calls
	started      bool
	closed       bool
	sub          Subscription

	watchMu     sync.Mutex
	watchers    map[uint64]func(AuthState)
	nextWatcher uint64
}

// NewStore creates a store in the loading state. Call Start to perform the
// initial session check and subscribe to backend events.
func NewStore(backend Backend, logger *logrus.Logger) *Store {
	return &Store{
		backend:      backend,
		establisher:  NewSessionEstablisher(backend, logger),
		logger:       logger,
		initializing: true,
		watchers:     make(map[uint64]func(AuthState)),
	}
}

// Start subscribes to backend auth changes and runs the initial refresh.
// Calling Start more than once only refreshes.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	first := !s.started && !s.closed
	s.started = true
	s.mu.Unlock()

	if first {
		sub := s.backend.OnAuthChange(s.handleAuthChange)
		s.mu.Lock()
		closed := s.closed
		if !closed {
			s.sub = sub
		}
		s.mu.Unlock()
		if closed {
			sub.Unsubscribe()
		}
	}
	return s.Refresh(ctx)
}

// Current returns a snapshot of the auth state.
func (s *Store) Current() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() AuthState {
	state := AuthState{Loading: s.initializing || s.refreshing > 0}
	if s.session != nil {
		session := *s.session
		user := *s.user
		state.Session = &session
		state.User = &user
	}
	return state
}

// Refresh re-reads the backend session and overwrites {user, session}.
// On error the previous session is kept and the error returned.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshing++
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("Refreshing auth session")
	session, err := s.backend.GetSession(ctx)

	s.mu.Lock()
	s.refreshing--
	s.initializing = false
	if err == nil {
		s.setSessionLocked(session)
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.WithError(err).Error("Error refreshing session")
		return fmt.Errorf("refresh session: %w", err)
	}
	s.logger.WithField("signed_in", session != nil).Debug("Session refresh result")
	return nil
}

// SignIn runs signer and refreshes the session when it succeeds.
func (s *Store) SignIn(ctx context.Context, signer Signer) SignInOutcome {
	outcome := signer.SignIn(ctx)
	if outcome.Succeeded() {
		// The auth-change event usually lands first; refresh covers backends
		// that do not push one.
		if err := s.Refresh(ctx); err != nil {
			s.logger.WithError(err).Warn("Session refresh after sign-in failed")
		}
	}
	return outcome
}

// CreateSessionFromURL establishes a session from a callback deep link that
// arrived outside a browser session, e.g. as the launch URL.
func (s *Store) CreateSessionFromURL(ctx context.Context, callbackURL string) (*Session, error) {
	tokens, err := ParseCallbackURL(callbackURL)
	if err != nil {
		return nil, err
	}
	session, err := s.establisher.Establish(ctx, tokens)
	if err != nil || session == nil {
		return nil, err
	}

	s.mu.Lock()
	s.setSessionLocked(session)
	s.mu.Unlock()
	s.notify()
	return session, nil
}

// SignOut ends the backend session and clears local state optimistically.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.WithError(err).Error("Error signing out")
		return &SignOutError{Err: err}
	}

	s.mu.Lock()
	s.setSessionLocked(nil)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Watch registers fn to be called after every state write. The returned
// function removes it.
func (s *Store) Watch(fn func(AuthState)) func() {
	s.watchMu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Close releases the backend subscription. A Start after Close does not
// subscribe. Safe to call repeatedly.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *Store) handleAuthChange(event AuthEvent, session *Session) {
	s.logger.WithField("event", event).Info("Auth state changed")

	s.mu.Lock()
	s.setSessionLocked(session)
	s.mu.Unlock()
	s.notify()
}

// setSessionLocked writes user and session together.
func (s *Store) setSessionLocked(session *Session) {
	if session == nil {
		s.session = nil
		s.user = nil
		return
	}
	cp := *session
	user := cp.User
	s.session = &cp
	s.user = &user
}

func (s *Store) notify() {
	state := s.Current()

	s.watchMu.Lock()
	fns := make([]func(AuthState), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

package navigator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSession(id string) *authflow.Session {
	return &authflow.Session{
		ID:          "session-" + id,
		User:        authflow.UserIdentity{ID: id, Email: id + "@example.com", Provider: "google"},
		AccessToken: "access-" + id,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

// fakeBackend serves a fixed session. When block is set, the first
// GetSession waits for it to close.
type fakeBackend struct {
	mu        sync.Mutex
	session   *authflow.Session
	block     chan struct{}
	gets      int
	listeners []func(authflow.AuthEvent, *authflow.Session)
}

func (b *fakeBackend) GetSession(ctx context.Context) (*authflow.Session, error) {
	b.mu.Lock()
	b.gets++
	block := b.block
	b.block = nil
	b.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, nil
}

func (b *fakeBackend) SetSession(ctx context.Context, tokens authflow.TokenPair) (*authflow.Session, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBackend) SignOut(ctx context.Context) error { return nil }

func (b *fakeBackend) SignInWithOAuth(ctx context.Context, req authflow.AuthorizationRequest) (string, error) {
	return "", errors.New("not supported")
}

func (b *fakeBackend) OnAuthChange(fn func(authflow.AuthEvent, *authflow.Session)) authflow.Subscription {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
	return authflow.SubscriptionFunc(func() {})
}

func (b *fakeBackend) setSession(session *authflow.Session) {
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
}

func (b *fakeBackend) getCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

// memoryFlags keeps flags in a map. When block is set, GetItem waits for it
// to close or for ctx to end.
type memoryFlags struct {
	mu     sync.Mutex
	items  map[string]string
	getErr error
	block  chan struct{}
	gets   int
}

func newMemoryFlags() *memoryFlags {
	return &memoryFlags{items: make(map[string]string)}
}

func (f *memoryFlags) GetItem(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	f.gets++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.items[key], nil
}

func (f *memoryFlags) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *memoryFlags) SetItem(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = value
	return nil
}

func (f *memoryFlags) RemoveItem(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
	return nil
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []string
}

func (a *alertRecorder) Alert(ctx context.Context, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, title+": "+message)
	return nil
}

func (a *alertRecorder) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *phaseRecorder) record(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *phaseRecorder) count(p Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.phases {
		if got == p {
			n++
		}
	}
	return n
}

type signerFunc func(ctx context.Context) authflow.SignInOutcome

func (f signerFunc) SignIn(ctx context.Context) authflow.SignInOutcome { return f(ctx) }

type fixture struct {
	backend *fakeBackend
	store   *authflow.Store
	flags   *memoryFlags
	alerts  *alertRecorder
	phases  *phaseRecorder
	clock   *clockwork.FakeClock
	nav     *Navigator
}

// newFixture wires a navigator to a real store. The store is not started.
func newFixture(t *testing.T, backend *fakeBackend) *fixture {
	t.Helper()
	logger := newTestLogger()
	f := &fixture{
		backend: backend,
		store:   authflow.NewStore(backend, logger),
		flags:   newMemoryFlags(),
		alerts:  &alertRecorder{},
		phases:  &phaseRecorder{},
		clock:   clockwork.NewFakeClock(),
	}
	f.nav = New(f.store, f.flags, f.alerts, Config{LoadingTimeout: 10 * time.Second}, f.clock, logger)
	f.nav.Watch(f.phases.record)
	t.Cleanup(func() {
		f.nav.Stop()
		f.store.Close()
	})
	return f
}

func (f *fixture) startStore(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Start(context.Background()))
}

func (f *fixture) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return f.nav.Phase() == want }, time.Second, 5*time.Millisecond,
		"phase is %s, want %s", f.nav.Phase(), want)
}

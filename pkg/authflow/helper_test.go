package authflow

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func testSession(id string) *Session {
	return &Session{
		ID: "session-" + id,
		User: UserIdentity{
			ID:       id,
			Email:    id + "@example.com",
			Name:     "User " + id,
			Provider: string(ProviderGoogle),
		},
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// mockBackend is an in-memory Backend for tests.
type mockBackend struct {
	mu sync.Mutex

	session    *Session
	authURL    string
	getErr     error
	setErr     error
	signOutErr error
	authErr    error

	getCalls     int
	setCalls     int
	signOutCalls int
	lastTokens   TokenPair
	lastRequest  AuthorizationRequest
	unsubscribes int

	getBlock chan struct{} // When set, GetSession waits for it to close

	listeners map[int]func(AuthEvent, *Session)
	nextID    int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		authURL:   "https://auth.example.com/authorize?state=xyz",
		listeners: make(map[int]func(AuthEvent, *Session)),
	}
}

func (b *mockBackend) GetSession(ctx context.Context) (*Session, error) {
	b.mu.Lock()
	b.getCalls++
	block := b.getBlock
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
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.session, nil
}

func (b *mockBackend) SetSession(ctx context.Context, tokens TokenPair) (*Session, error) {
	b.mu.Lock()
	b.setCalls++
	b.lastTokens = tokens
	if b.setErr != nil {
		err := b.setErr
		b.mu.Unlock()
		return nil, err
	}
	session := testSession("u1")
	session.AccessToken = tokens.AccessToken
	session.RefreshToken = tokens.RefreshToken
	b.session = session
	b.mu.Unlock()

	b.emit(EventSignedIn, session)
	return session, nil
}

func (b *mockBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.signOutCalls++
	if b.signOutErr != nil {
		err := b.signOutErr
		b.mu.Unlock()
		return err
	}
	b.session = nil
	b.mu.Unlock()

	b.emit(EventSignedOut, nil)
	return nil
}

func (b *mockBackend) SignInWithOAuth(ctx context.Context, req AuthorizationRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRequest = req
	if b.authErr != nil {
		return "", b.authErr
	}
	return b.authURL, nil
}

func (b *mockBackend) OnAuthChange(fn func(AuthEvent, *Session)) Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return SubscriptionFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.unsubscribes++
		delete(b.listeners, id)
	})
}

func (b *mockBackend) emit(event AuthEvent, session *Session) {
	b.mu.Lock()
	fns := make([]func(AuthEvent, *Session), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

func (b *mockBackend) counts() (get, set, signOut int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getCalls, b.setCalls, b.signOutCalls
}

// mockBrowser returns a canned result, optionally blocking until released.
type mockBrowser struct {
	mu      sync.Mutex
	calls   int
	result  CallbackResult
	opened  chan struct{}
	release chan struct{}
}

func newMockBrowser(result CallbackResult) *mockBrowser {
	return &mockBrowser{result: result, opened: make(chan struct{}, 4)}
}

func (b *mockBrowser) OpenAuthSession(ctx context.Context, authURL, returnURI string) CallbackResult {
	b.mu.Lock()
	b.calls++
	release := b.release
	b.mu.Unlock()

	b.opened <- struct{}{}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return CallbackResult{Type: ResultCancelled}
		}
	}
	return b.result
}

func (b *mockBrowser) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type staticInitialURL struct {
	url string
	err error
}

func (s staticInitialURL) InitialURL(ctx context.Context) (string, error) {
	return s.url, s.err
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/y0ug/glanceauth/pkg/authflow"
)

type recordedEvent struct {
	event   authflow.AuthEvent
	session *authflow.Session
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) record(event authflow.AuthEvent, session *authflow.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event, session})
}

func (r *eventRecorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func newTestClient() (*Client, *Broker, *MockDatabase, *mockProvider, *memoryStorage) {
	broker, db, provider := newTestBroker()
	storage := newMemoryStorage()
	return NewClient(broker, storage, newTestLogger()), broker, db, provider, storage
}

func TestClientSetSession(t *testing.T) {
	client, broker, _, provider, storage := newTestClient()
	tokens := issueTestTokens(t, broker, provider)
	rec := &eventRecorder{}
	client.OnAuthChange(rec.record)

	session, err := client.SetSession(context.Background(), authflow.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	if session.User.ID != "user123" || session.User.Email != "user@example.com" || session.ID == "" {
		t.Errorf("unexpected session %+v", session)
	}
	if session.ExpiresAt.IsZero() {
		t.Errorf("expiry must be set from the token")
	}

	var stored authflow.Session
	if err := json.Unmarshal([]byte(storage.items[SessionStorageKey]), &stored); err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.AccessToken != tokens.AccessToken {
		t.Errorf("persisted session mismatch")
	}

	events := rec.all()
	if len(events) != 1 || events[0].event != authflow.EventSignedIn || events[0].session.User.ID != "user123" {
		t.Errorf("expected one SIGNED_IN event, got %+v", events)
	}
}

func TestClientSetSessionInvalidToken(t *testing.T) {
	client, _, _, _, storage := newTestClient()

	_, err := client.SetSession(context.Background(), authflow.TokenPair{AccessToken: "not-a-jwt"})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if len(storage.items) != 0 {
		t.Errorf("nothing must be persisted")
	}
}

func TestClientGetSessionEmpty(t *testing.T) {
	client, _, _, _, _ := newTestClient()

	session, err := client.GetSession(context.Background())
	if err != nil || session != nil {
		t.Errorf("expected no session, got %v, %v", session, err)
	}
}

func TestClientGetSessionRefreshesNearExpiry(t *testing.T) {
	client, broker, _, provider, _ := newTestClient()
	tokens := issueTestTokens(t, broker, provider)
	original, err := client.SetSession(context.Background(), authflow.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	rec := &eventRecorder{}
	client.OnAuthChange(rec.record)
	client.now = func() time.Time { return original.ExpiresAt.Add(-10 * time.Second) }

	session, err := client.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.RefreshToken == original.RefreshToken {
		t.Errorf("refresh token must rotate")
	}
	if session.ID != original.ID {
		t.Errorf("session id must be kept across refresh")
	}

	events := rec.all()
	if len(events) != 1 || events[0].event != authflow.EventTokenRefreshed {
		t.Errorf("expected TOKEN_REFRESHED, got %+v", events)
	}
}

func TestClientGetSessionRejectedRefreshSignsOut(t *testing.T) {
	client, broker, db, provider, storage := newTestClient()
	tokens := issueTestTokens(t, broker, provider)
	original, _ := client.SetSession(context.Background(), authflow.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	db.RevokeRefreshToken(context.Background(), tokens.RefreshToken)

	rec := &eventRecorder{}
	client.OnAuthChange(rec.record)
	client.now = func() time.Time { return original.ExpiresAt.Add(time.Minute) }

	session, err := client.GetSession(context.Background())
	if err != nil || session != nil {
		t.Fatalf("expected signed out, got %v, %v", session, err)
	}
	if _, ok := storage.items[SessionStorageKey]; ok {
		t.Errorf("stored session must be removed")
	}
	events := rec.all()
	if len(events) != 1 || events[0].event != authflow.EventSignedOut || events[0].session != nil {
		t.Errorf("expected SIGNED_OUT, got %+v", events)
	}
}

func TestClientSignOut(t *testing.T) {
	client, broker, db, provider, storage := newTestClient()
	tokens := issueTestTokens(t, broker, provider)
	client.SetSession(context.Background(), authflow.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})

	rec := &eventRecorder{}
	sub := client.OnAuthChange(rec.record)

	if err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, ok := db.BlacklistedTokens[tokens.AccessToken]; !ok {
		t.Errorf("access token must be blacklisted")
	}
	if _, ok := storage.items[SessionStorageKey]; ok {
		t.Errorf("stored session must be removed")
	}
	if events := rec.all(); len(events) != 1 || events[0].event != authflow.EventSignedOut {
		t.Errorf("expected SIGNED_OUT, got %+v", events)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	client.SignOut(context.Background())
	if events := rec.all(); len(events) != 1 {
		t.Errorf("unsubscribed listener must not be called, got %d events", len(events))
	}
}

func TestClientSignInWithOAuth(t *testing.T) {
	client, _, db, _, _ := newTestClient()

	authURL, err := client.SignInWithOAuth(context.Background(), authflow.AuthorizationRequest{
		Provider:          authflow.ProviderGoogle,
		RedirectURI:       "financeglance://auth/callback",
		SkipInAppRedirect: true,
	})
	if err != nil || authURL == "" {
		t.Fatalf("SignInWithOAuth failed: %v", err)
	}
	db.onlyState(t)
}

// Drives the core flow against the real client end to end: the browser
// follows the broker callback and returns the app redirect URL.
func TestClientWithController(t *testing.T) {
	client, broker, db, _, _ := newTestClient()
	logger := newTestLogger()

	browser := browserFunc(func(ctx context.Context, authURL, returnURI string) authflow.CallbackResult {
		target, err := broker.CompleteAuthorization(ctx, "google", CallbackParams{State: db.onlyState(t), Code: "code"})
		if err != nil {
			return authflow.CallbackResult{Type: authflow.ResultFailed, Reason: err.Error()}
		}
		return authflow.CallbackResult{Type: authflow.ResultSuccess, URL: target}
	})

	resolver := authflow.NewRedirectResolver(authflow.RedirectConfig{}, nil, logger)
	controller := authflow.NewController(authflow.ProviderGoogle, resolver, client, browser, logger)
	store := authflow.NewStore(client, logger)
	defer store.Close()
	if err := store.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	outcome := store.SignIn(context.Background(), controller)
	if !outcome.Succeeded() {
		t.Fatalf("sign-in failed: %+v", outcome)
	}
	state := store.Current()
	if !state.SignedIn() || state.User.Email != "user@example.com" {
		t.Errorf("store not signed in: %+v", state)
	}
}

type browserFunc func(ctx context.Context, authURL, returnURI string) authflow.CallbackResult

func (f browserFunc) OpenAuthSession(ctx context.Context, authURL, returnURI string) authflow.CallbackResult {
	return f(ctx, authURL, returnURI)
}

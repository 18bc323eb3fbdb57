package authflow

import "context"

// Backend is the external auth backend owning session storage and refresh.
type Backend interface {
	// GetSession returns the current session or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)

	// SetSession builds and persists a session from callback tokens.
	SetSession(ctx context.Context, tokens TokenPair) (*Session, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// SignInWithOAuth returns the authorization URL to present in the browser.
	SignInWithOAuth(ctx context.Context, req AuthorizationRequest) (string, error)

	// OnAuthChange registers a callback for backend-pushed session changes.
	OnAuthChange(fn func(event AuthEvent, session *Session)) Subscription
}

// Subscription is released with Unsubscribe. Releasing twice is a no-op.
type Subscription interface {
	Unsubscribe()
}

// Browser presents an authorization URL and waits for a terminal result.
type Browser interface {
	OpenAuthSession(ctx context.Context, authURL, returnURI string) CallbackResult
}

// InitialURLSource exposes the URL the process was launched with.
// An empty string means there was none.
type InitialURLSource interface {
	InitialURL(ctx context.Context) (string, error)
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

package authflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(backend *mockBackend, browser *mockBrowser) *Controller {
	resolver := NewRedirectResolver(RedirectConfig{AppScheme: "app"}, nil, newTestLogger())
	return NewController(ProviderGoogle, resolver, backend, browser, newTestLogger())
}

func TestEstablishNilTokens(t *testing.T) {
	backend := newMockBackend()
	e := NewSessionEstablisher(backend, newTestLogger())

	session, err := e.Establish(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, session)
	_, set, _ := backend.counts()
	assert.Zero(t, set)
}

func TestEstablishBackendError(t *testing.T) {
	backend := newMockBackend()
	backend.setErr = errors.New("invalid JWT")
	e := NewSessionEstablisher(backend, newTestLogger())

	session, err := e.Establish(context.Background(), &ExtractedTokens{AccessToken: "abc"})
	assert.Nil(t, session)
	var estErr *EstablishmentError
	require.True(t, errors.As(err, &estErr))
	assert.EqualError(t, estErr.Err, "invalid JWT")
}

func TestSignInSuccess(t *testing.T) {
	backend := newMockBackend()
	browser := newMockBrowser(CallbackResult{
		Type: ResultSuccess,
		URL:  "app://auth/callback#access_token=abc&refresh_token=def",
	})
	c := newTestController(backend, browser)

	outcome := c.SignIn(context.Background())
	assert.True(t, outcome.Succeeded(), outcome.Message)
	assert.Equal(t, TokenPair{AccessToken: "abc", RefreshToken: "def"}, backend.lastTokens)
	assert.Equal(t, AuthorizationRequest{
		Provider:          ProviderGoogle,
		RedirectURI:       "app://auth/callback",
		SkipInAppRedirect: true,
	}, backend.lastRequest)
	assert.Equal(t, StateDone, c.State())
}

func TestSignInCallbackErrorSkipsEstablish(t *testing.T) {
	backend := newMockBackend()
	browser := newMockBrowser(CallbackResult{
		Type: ResultSuccess,
		URL:  "app://auth/callback?error=access_denied",
	})
	c := newTestController(backend, browser)

	outcome := c.SignIn(context.Background())
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, ReasonCallbackError, outcome.Reason)
	assert.Contains(t, outcome.Message, "access_denied")
	_, set, _ := backend.counts()
	assert.Zero(t, set, "SetSession must not be called")
}

func TestSignInCancelled(t *testing.T) {
	backend := newMockBackend()
	c := newTestController(backend, newMockBrowser(CallbackResult{Type: ResultCancelled}))

	outcome := c.SignIn(context.Background())
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, ReasonCancelled, outcome.Reason)
	assert.True(t, outcome.UserCancelled())
	assert.Contains(t, outcome.Message, "cancel")
}

func TestSignInDismissed(t *testing.T) {
	c := newTestController(newMockBackend(), newMockBrowser(CallbackResult{Type: ResultDismissed}))

	outcome := c.SignIn(context.Background())
	assert.Equal(t, ReasonDismissed, outcome.Reason)
	assert.True(t, outcome.UserCancelled())
}

func TestSignInBrowserFailed(t *testing.T) {
	c := newTestController(newMockBackend(), newMockBrowser(CallbackResult{Type: ResultFailed, Reason: "no browser"}))

	outcome := c.SignIn(context.Background())
	assert.Equal(t, ReasonBrowserFailed, outcome.Reason)
	assert.False(t, outcome.UserCancelled())
	assert.Contains(t, outcome.Message, "no browser")
}

func TestSignInTokenAbsent(t *testing.T) {
	c := newTestController(newMockBackend(), newMockBrowser(CallbackResult{
		Type: ResultSuccess,
		URL:  "app://auth/callback",
	}))

	outcome := c.SignIn(context.Background())
	assert.Equal(t, ReasonTokenAbsent, outcome.Reason)
	assert.Contains(t, outcome.Message, "Failed to create session")
}

func TestSignInEstablishmentFailure(t *testing.T) {
	backend := newMockBackend()
	backend.setErr = errors.New("token expired")
	c := newTestController(backend, newMockBrowser(CallbackResult{
		Type: ResultSuccess,
		URL:  "app://auth/callback#access_token=abc",
	}))

	outcome := c.SignIn(context.Background())
	assert.Equal(t, ReasonEstablishment, outcome.Reason)
	assert.Contains(t, outcome.Message, "token expired")
}

func TestSignInConfigurationError(t *testing.T) {
	backend := newMockBackend()
	backend.authErr = &ConfigurationError{RedirectURI: "app://auth/callback", Message: "not in allow-list"}
	browser := newMockBrowser(CallbackResult{Type: ResultSuccess})
	c := newTestController(backend, browser)

	outcome := c.SignIn(context.Background())
	assert.Equal(t, ReasonConfiguration, outcome.Reason)
	assert.Zero(t, browser.callCount())
}

func TestSignInBackendError(t *testing.T) {
	backend := newMockBackend()
	backend.authErr = errors.New("connection refused")
	c := newTestController(backend, newMockBrowser(CallbackResult{Type: ResultSuccess}))

	outcome := c.SignIn(context.Background())
	assert.Equal(t, ReasonBackend, outcome.Reason)
	assert.Contains(t, outcome.Message, "connection refused")
}

func TestSignInMutualExclusion(t *testing.T) {
	backend := newMockBackend()
	browser := newMockBrowser(CallbackResult{
		Type: ResultSuccess,
		URL:  "app://auth/callback#access_token=abc",
	})
	browser.release = make(chan struct{})
	c := newTestController(backend, browser)

	first := make(chan SignInOutcome, 1)
	go func() { first <- c.SignIn(context.Background()) }()

	select {
	case <-browser.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("browser was never opened")
	}
	assert.Equal(t, StateAwaitingBrowser, c.State())

	second := c.SignIn(context.Background())
	assert.Equal(t, ReasonBusy, second.Reason)
	assert.Equal(t, 1, browser.callCount(), "no second browser session")

	close(browser.release)
	outcome := <-first
	assert.True(t, outcome.Succeeded(), outcome.Message)

	// The guard is released once the first call finishes.
	browser.release = nil
	third := c.SignIn(context.Background())
	assert.True(t, third.Succeeded(), third.Message)
}

func TestCreateSessionFromURL(t *testing.T) {
	backend := newMockBackend()
	c := newTestController(backend, newMockBrowser(CallbackResult{}))

	session, err := c.CreateSessionFromURL(context.Background(), "app://auth/callback#access_token=abc&refresh_token=def")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "abc", session.AccessToken)

	session, err = c.CreateSessionFromURL(context.Background(), "app://auth/callback")
	assert.NoError(t, err)
	assert.Nil(t, session)

	_, err = c.CreateSessionFromURL(context.Background(), "app://auth/callback?error=access_denied")
	var cbErr *CallbackError
	assert.True(t, errors.As(err, &cbErr))
}

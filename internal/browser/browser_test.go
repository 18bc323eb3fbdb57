package browser

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y0ug/glanceauth/internal/linking"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

const returnURI = "financeglance://auth/callback"

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// openSession starts a session in the background and waits until the opener
// has been called.
func openSession(t *testing.T, ctx context.Context, b *Browser, opened chan string) <-chan authflow.CallbackResult {
	t.Helper()
	results := make(chan authflow.CallbackResult, 1)
	go func() {
		results <- b.OpenAuthSession(ctx, "https://accounts.example.com/auth?state=s", returnURI)
	}()
	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("browser was not opened")
	}
	return results
}

func recordingOpener() (Opener, chan string) {
	opened := make(chan string, 4)
	return OpenerFunc(func(ctx context.Context, target string) error {
		opened <- target
		return nil
	}), opened
}

func waitResult(t *testing.T, results <-chan authflow.CallbackResult) authflow.CallbackResult {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(time.Second):
		t.Fatal("auth session did not finish")
		return authflow.CallbackResult{}
	}
}

func TestOpenAuthSessionResolvesOnMatchingLink(t *testing.T) {
	linker := linking.NewLinker("", newTestLogger())
	opener, opened := recordingOpener()
	b := New(opener, linker, newTestLogger())

	results := openSession(t, context.Background(), b, opened)

	require.NoError(t, linker.Deliver("financeglance://home"))
	require.NoError(t, linker.Deliver("financeglance://auth/callback#access_token=a&refresh_token=r"))

	res := waitResult(t, results)
	assert.Equal(t, authflow.ResultSuccess, res.Type)
	assert.Equal(t, "financeglance://auth/callback#access_token=a&refresh_token=r", res.URL)
}

func TestOpenAuthSessionDismiss(t *testing.T) {
	linker := linking.NewLinker("", newTestLogger())
	opener, opened := recordingOpener()
	b := New(opener, linker, newTestLogger())

	assert.False(t, b.Dismiss())
	results := openSession(t, context.Background(), b, opened)
	assert.True(t, b.Dismiss())

	res := waitResult(t, results)
	assert.Equal(t, authflow.ResultDismissed, res.Type)
	assert.False(t, b.Dismiss())
}

func TestOpenAuthSessionContextCancelled(t *testing.T) {
	linker := linking.NewLinker("", newTestLogger())
	opener, opened := recordingOpener()
	b := New(opener, linker, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	results := openSession(t, ctx, b, opened)
	cancel()

	res := waitResult(t, results)
	assert.Equal(t, authflow.ResultCancelled, res.Type)
}

func TestOpenAuthSessionOpenerError(t *testing.T) {
	linker := linking.NewLinker("", newTestLogger())
	b := New(OpenerFunc(func(context.Context, string) error {
		return errors.New("xdg-open not found")
	}), linker, newTestLogger())

	res := b.OpenAuthSession(context.Background(), "https://accounts.example.com/auth", returnURI)
	assert.Equal(t, authflow.ResultFailed, res.Type)
	assert.Contains(t, res.Reason, "xdg-open")
}

func TestOpenAuthSessionOneAtATime(t *testing.T) {
	linker := linking.NewLinker("", newTestLogger())
	opener, opened := recordingOpener()
	b := New(opener, linker, newTestLogger())

	results := openSession(t, context.Background(), b, opened)

	second := b.OpenAuthSession(context.Background(), "https://accounts.example.com/auth", returnURI)
	assert.Equal(t, authflow.ResultFailed, second.Type)

	b.Dismiss()
	waitResult(t, results)
}

func TestMatchesReturnURI(t *testing.T) {
	tests := []struct {
		rawURL    string
		returnURI string
		want      bool
	}{
		{"financeglance://auth/callback#access_token=a", "financeglance://auth/callback", true},
		{"financeglance://auth/callback/?error=access_denied", "financeglance://auth/callback", true},
		{"FinanceGlance://auth/callback", "financeglance://auth/callback", true},
		{"financeglance://auth/other", "financeglance://auth/callback", false},
		{"exp://192.168.1.20:19000/--/auth-callback#access_token=a", "exp://192.168.1.20:19000/--/auth-callback", true},
		{"exp://localhost:8081/--/auth-callback", "exp://192.168.1.20:19000/--/auth-callback", false},
		{"http://[::1]:8081/--/auth-callback", "http://[::1]:8081/--/auth-callback", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesReturnURI(tt.rawURL, tt.returnURI), tt.rawURL)
	}
}

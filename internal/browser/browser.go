package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

// LinkSource delivers deep links received by the process.
type LinkSource interface {
	Subscribe(fn func(rawURL string)) func()
}

// Browser runs in-app auth sessions: it opens the authorization URL and
// waits for the deep link that returns to the app.
type Browser struct {
	opener Opener
	links  LinkSource
	logger *logrus.Logger

	mu      sync.Mutex
	dismiss chan struct{} // Non-nil while a session is open
}

// New creates a Browser.
func New(opener Opener, links LinkSource, logger *logrus.Logger) *Browser {
	return &Browser{
		opener: opener,
		links:  links,
		logger: logger,
	}
}

// OpenAuthSession opens authURL and blocks until a deep link matching
// returnURI arrives, the session is dismissed, or ctx ends. Only one session
// may be open at a time.
func (b *Browser) OpenAuthSession(ctx context.Context, authURL, returnURI string) authflow.CallbackResult {
	dismiss := make(chan struct{})
	b.mu.Lock()
	if b.dismiss != nil {
		b.mu.Unlock()
		return authflow.CallbackResult{Type: authflow.ResultFailed, Reason: "another auth session is already open"}
	}
	b.dismiss = dismiss
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.dismiss == dismiss {
			b.dismiss = nil
		}
		b.mu.Unlock()
	}()

	// Subscribe before opening so a fast redirect is not missed.
	links := make(chan string, 1)
	unsubscribe := b.links.Subscribe(func(rawURL string) {
		if !MatchesReturnURI(rawURL, returnURI) {
			return
		}
		select {
		case links <- rawURL:
		default:
		}
	})
	defer unsubscribe()

	b.logger.WithField("return_uri", returnURI).Info("Opening auth session")
	if err := b.opener.Open(ctx, authURL); err != nil {
		b.logger.WithError(err).Error("Failed to open browser")
		return authflow.CallbackResult{Type: authflow.ResultFailed, Reason: err.Error()}
	}

	select {
	case rawURL := <-links:
		b.logger.Debug("Auth session returned to app")
		return authflow.CallbackResult{Type: authflow.ResultSuccess, URL: rawURL}
	case <-dismiss:
		b.logger.Info("Auth session dismissed")
		return authflow.CallbackResult{Type: authflow.ResultDismissed}
	case <-ctx.Done():
		b.logger.WithError(ctx.Err()).Info("Auth session cancelled")
		return authflow.CallbackResult{Type: authflow.ResultCancelled}
	}
}

// Dismiss closes the open session. It reports false when none is open.
func (b *Browser) Dismiss() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dismiss == nil {
		return false
	}
	close(b.dismiss)
	b.dismiss = nil
	return true
}

// MatchesReturnURI reports whether rawURL targets returnURI, ignoring query
// and fragment.
func MatchesReturnURI(rawURL, returnURI string) bool {
	got, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	want, err := url.Parse(returnURI)
	if err != nil {
		return false
	}
	return strings.EqualFold(got.Scheme, want.Scheme) &&
		strings.EqualFold(got.Host, want.Host) &&
		strings.TrimSuffix(got.Path, "/") == strings.TrimSuffix(want.Path, "/")
}

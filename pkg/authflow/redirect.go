package authflow

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// RedirectResolver computes the callback URI the authorization server must
// send the browser back to.
type RedirectResolver struct {
	config  RedirectConfig
	initial InitialURLSource
	logger  *logrus.Logger
}

// NewRedirectResolver creates a resolver. initial may be nil in production.
func NewRedirectResolver(config RedirectConfig, initial InitialURLSource, logger *logrus.Logger) *RedirectResolver {
	return &RedirectResolver{
		config:  config.withDefaults(),
		initial: initial,
		logger:  logger,
	}
}

// Resolve returns the redirect URI for the current environment. It never fails.
func (r *RedirectResolver) Resolve(ctx context.Context) string {
	if !r.config.Development {
		uri := ProductionRedirectURI(r.config.AppScheme, r.config.CallbackPath)
		r.logger.WithField("redirect_uri", uri).Debug("Using production redirect URI")
		return uri
	}

	host, port := r.devHostPort(ctx)
	uri := DevelopmentRedirectURI(r.config.DevScheme, host, port)
	r.logger.WithField("redirect_uri", uri).Debug("Using development redirect URI")
	return uri
}

// devHostPort discovers the dev server address from the initial URL.
func (r *RedirectResolver) devHostPort(ctx context.Context) (string, string) {
	if r.initial == nil {
		return r.config.DevHost, r.config.DevPort
	}

	initialURL, err := r.initial.InitialURL(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read initial URL, using default dev host")
		return r.config.DevHost, r.config.DevPort
	}
	r.logger.WithField("initial_url", initialURL).Debug("Initial URL for redirect configuration")

	return HostPortFromURL(initialURL, r.config.DevHost, r.config.DevPort)
}

// HostPortFromURL extracts hostname and port from rawURL, falling back to the
// given defaults for any part that is missing or unparsable.
func HostPortFromURL(rawURL, defaultHost, defaultPort string) (string, string) {
	host, port := defaultHost, defaultPort
	if rawURL == "" {
		return host, port
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return host, port
	}
	if h := u.Hostname(); h != "" {
		host = h
	}
	if p := u.Port(); p != "" {
		port = p
	}
	return host, port
}

// ProductionRedirectURI builds "<scheme>://<path>".
func ProductionRedirectURI(scheme, path string) string {
	return scheme + "://" + strings.TrimPrefix(path, "/")
}

// DevelopmentRedirectURI builds "<scheme>://<host>:<port>/--/auth-callback".
func DevelopmentRedirectURI(scheme, host, port string) string {
	return scheme + "://" + net.JoinHostPort(host, port) + devCallbackPath
}

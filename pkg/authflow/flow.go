package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// FlowState is the per-invocation state of a sign-in.
type FlowState string

const (
	StateIdle                FlowState = "idle"
	StateResolvingRedirect   FlowState = "resolving_redirect"
	StateRequestingAuthURL   FlowState = "requesting_auth_url"
	StateAwaitingBrowser     FlowState = "awaiting_browser"
	StateParsingCallback     FlowState = "parsing_callback"
	StateEstablishingSession FlowState = "establishing_session"
	StateDone                FlowState = "done"
)

// Controller orchestrates one browser-mediated OAuth sign-in at a time.
type Controller struct {
	provider    Provider
	resolver    *RedirectResolver
	backend     Backend
	browser     Browser
	establisher *SessionEstablisher
	logger      *logrus.Logger

	sem *semaphore.Weighted // Size 1; TryAcquire only, never queues

	mu    sync.Mutex
	state FlowState
}

// NewController creates a Controller.
func NewController(provider Provider, resolver *RedirectResolver, backend Backend, browser Browser, logger *logrus.Logger) *Controller {
	if provider == "" {
		provider = ProviderGoogle
	}
	return &Controller{
		provider:    provider,
		resolver:    resolver,
		backend:     backend,
		browser:     browser,
		establisher: NewSessionEstablisher(backend, logger),
		logger:      logger,
		sem:         semaphore.NewWeighted(1),
		state:       StateIdle,
	}
}

// State returns the state of the current (or last) sign-in.
func (c *Controller) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(state FlowState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.logger.WithField("state", state).Debug("Sign-in state changed")
}

// SignIn runs the full flow and flattens every failure into the outcome.
// A call made while another is in flight fails immediately with ReasonBusy.
func (c *Controller) SignIn(ctx context.Context) SignInOutcome {
	if !c.sem.TryAcquire(1) {
		c.logger.Warn("Sign-in rejected: another sign-in is already in flight")
		return failure(ReasonBusy, ErrBusy.Error())
	}
	defer c.sem.Release(1)

	outcome := c.run(ctx)
	c.setState(StateDone)

	entry := c.logger.WithFields(logrus.Fields{
		"status": outcome.Status,
		"reason": outcome.Reason,
	})
	if outcome.Succeeded() {
		entry.Info("Sign-in completed")
	} else {
		entry.WithField("message", outcome.Message).Warn("Sign-in failed")
	}
	return outcome
}

func (c *Controller) run(ctx context.Context) SignInOutcome {
	c.setState(StateResolvingRedirect)
	redirectURI := c.resolver.Resolve(ctx)

	c.setState(StateRequestingAuthURL)
	authURL, err := c.backend.SignInWithOAuth(ctx, AuthorizationRequest{
		Provider:          c.provider,
		RedirectURI:       redirectURI,
		SkipInAppRedirect: true,
	})
	if err != nil {
		return c.backendFailure(err)
	}
	if authURL == "" {
		return failure(ReasonBackend, "No auth URL returned by backend")
	}
	c.logger.WithField("redirect_uri", redirectURI).Debug("Auth URL received")

	c.setState(StateAwaitingBrowser)
	result := c.browser.OpenAuthSession(ctx, authURL, redirectURI)
	c.logger.WithField("result", result.Type).Debug("Auth session result")

	switch result.Type {
	case ResultSuccess:
		if result.URL == "" {
			return failure(ReasonBrowserFailed, "Browser auth returned no callback URL")
		}
		return c.complete(ctx, result.URL)
	case ResultCancelled:
		return failure(ReasonCancelled, "Sign-in cancelled")
	case ResultDismissed:
		return failure(ReasonDismissed, "Browser auth dismissed")
	default:
		msg := "Browser auth failed"
		if result.Reason != "" {
			msg += ": " + result.Reason
		}
		return failure(ReasonBrowserFailed, msg)
	}
}

func (c *Controller) complete(ctx context.Context, callbackURL string) SignInOutcome {
	c.setState(StateParsingCallback)
	tokens, err := ParseCallbackURL(callbackURL)
	if err != nil {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			c.logger.WithField("error_code", cbErr.Code).Error("Error code in redirect")
			return failure(ReasonCallbackError, "Sign-in failed: "+cbErr.Code)
		}
		return failure(ReasonCallbackError, "Sign-in failed: invalid callback URL")
	}

	c.setState(StateEstablishingSession)
	session, err := c.establisher.Establish(ctx, tokens)
	if err != nil {
		var estErr *EstablishmentError
		if errors.As(err, &estErr) {
			return failure(ReasonEstablishment, "Failed to create session: "+estErr.Err.Error())
		}
		return failure(ReasonEstablishment, "Failed to create session")
	}
	if session == nil {
		return failure(ReasonTokenAbsent, "Failed to create session: no access token in callback")
	}
	return success()
}

func (c *Controller) backendFailure(err error) SignInOutcome {
	c.logger.WithError(err).Error("Backend OAuth URL generation failed")

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return failure(ReasonConfiguration, fmt.Sprintf("Sign-in is misconfigured: %s", cfgErr.Error()))
	}
	return failure(ReasonBackend, "Failed to start sign-in: "+err.Error())
}

// CreateSessionFromURL parses a callback deep link and establishes a session
// from it. It returns (nil, nil) when the URL carries no token.
func (c *Controller) CreateSessionFromURL(ctx context.Context, callbackURL string) (*Session, error) {
	tokens, err := ParseCallbackURL(callbackURL)
	if err != nil {
		return nil, err
	}
	return c.establisher.Establish(ctx, tokens)
}

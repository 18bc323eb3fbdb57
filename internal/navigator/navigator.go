package navigator

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

// AuthStore is the part of authflow.Store the navigator reads.
type AuthStore interface {
	Current() authflow.AuthState
	Refresh(ctx context.Context) error
	SignIn(ctx context.Context, signer authflow.Signer) authflow.SignInOutcome
	Watch(fn func(authflow.AuthState)) func()
}

// FlagStore persists small string flags.
type FlagStore interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Alerter shows a one-shot message to the user.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

// Navigator reconciles the auth state with what the UI shows and makes sure
// loading never spins forever.
type Navigator struct {
	store   AuthStore
	flags   FlagStore
	alerter Alerter
	config  Config
	clock   clockwork.Clock
	logger  *logrus.Logger

	// notifyMu serializes phase reports so watchers see them in order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	stopped     bool
	authLoading bool
	signingIn   int
	recovering  int
	timedOut    bool
	lastError   string
	user        *authflow.UserIdentity
	onboarded   bool
	checked     bool
	checkedUser string
	// checking is set while a flag read runs outside mu; checkGen drops
	// results that were overtaken.
	checking    bool
	checkGen    uint64
	timer       clockwork.Timer
	generation  uint64
	reported    Phase
	watchers    map[uint64]func(Phase)
	nextWatcher uint64

	unwatch  func()
	stopOnce sync.Once
}

// New creates a Navigator. Call Start to begin tracking the store.
func New(store AuthStore, flags FlagStore, alerter Alerter, config Config, clock clockwork.Clock, logger *logrus.Logger) *Navigator {
	return &Navigator{
		store:    store,
		flags:    flags,
		alerter:  alerter,
		config:   config.withDefaults(),
		clock:    clock,
		logger:   logger,
		ctx:      context.Background(),
		cancel:   func() {},
		watchers: make(map[uint64]func(Phase)),
	}
}

// Start follows store updates until Stop. Flag reads run under ctx and are
// cancelled by Stop.
func (n *Navigator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.ctx = ctx
	n.cancel = cancel
	n.mu.Unlock()

	n.unwatch = n.store.Watch(func(authflow.AuthState) {
		n.mu.Lock()
		n.syncLocked()
		n.mu.Unlock()
		n.publish()
	})

	n.mu.Lock()
	n.syncLocked()
	n.mu.Unlock()
	n.publish()
}

// Stop releases the store subscription and the timer, and cancels any
// pending flag read. No timer is armed afterwards. Safe to call repeatedly.
func (n *Navigator) Stop() {
	n.stopOnce.Do(func() {
		if n.unwatch != nil {
			n.unwatch()
		}
		n.mu.Lock()
		n.stopped = true
		n.cancel()
		n.dropCheckLocked()
		n.stopTimerLocked()
		n.mu.Unlock()
	})
}

// Phase returns the current phase.
func (n *Navigator) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phaseLocked()
}

// View returns what the UI should render.
func (n *Navigator) View() View {
	n.mu.Lock()
	defer n.mu.Unlock()

	view := View{Phase: n.phaseLocked()}
	switch view.Phase {
	case PhaseReady:
		view.Screen = RouteScreen(n.user, n.onboarded)
		if n.user != nil {
			user := *n.user
			view.User = &user
		}
	case PhaseTimedOut:
		view.Message = timeoutMessage
		view.Action = "Reset App State"
		view.CanRecover = true
	case PhaseErrored:
		view.Message = n.lastError
		view.Action = "Retry"
		view.CanRecover = true
	}
	return view
}

// Watch registers fn for every phase change. fn must not call back into
// the navigator's mutating methods. The returned function removes it.
func (n *Navigator) Watch(fn func(Phase)) func() {
	n.mu.Lock()
	id := n.nextWatcher
	n.nextWatcher++
	n.watchers[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.watchers, id)
		n.mu.Unlock()
	}
}

// SignIn runs signer through the store while the UI shows Authenticating.
// Failures other than the user backing out raise an alert.
func (n *Navigator) SignIn(ctx context.Context, signer authflow.Signer) authflow.SignInOutcome {
	n.mu.Lock()
	n.signingIn++
	n.updateTimerLocked()
	n.mu.Unlock()
	n.publish()

	outcome := n.store.SignIn(ctx, signer)

	n.mu.Lock()
	n.signingIn--
	n.syncLocked()
	n.mu.Unlock()
	n.publish()

	switch {
	case outcome.Succeeded():
	case outcome.UserCancelled():
		n.logger.WithField("reason", outcome.Reason).Info("Sign-in cancelled by user")
	case outcome.Reason == authflow.ReasonBusy:
		n.logger.Warn("Sign-in already in progress")
	default:
		if err := n.alerter.Alert(ctx, "Authentication Error", outcome.Message); err != nil {
			n.logger.WithError(err).Error("Failed to show sign-in alert")
		}
	}
	return outcome
}

// Recover clears the timeout and error, then re-runs the session check.
// It may be called any number of times.
func (n *Navigator) Recover(ctx context.Context) {
	n.logger.Info("Recovering navigator state")

	n.mu.Lock()
	n.stopTimerLocked()
	n.timedOut = false
	n.lastError = ""
	n.checked = false
	n.dropCheckLocked()
	n.recovering++
	n.authLoading = true
	n.updateTimerLocked()
	n.mu.Unlock()
	n.publish()

	if err := n.store.Refresh(ctx); err != nil {
		n.logger.WithError(err).Warn("Session refresh failed during recovery")
	}

	n.mu.Lock()
	n.recovering--
	n.syncLocked()
	n.mu.Unlock()
	n.publish()
}

// CompleteOnboarding persists the onboarding flag and routes to Home.
func (n *Navigator) CompleteOnboarding(ctx context.Context) error {
	if err := n.flags.SetItem(ctx, n.config.OnboardingKey, "true"); err != nil {
		return err
	}
	n.mu.Lock()
	n.settleOnboardingLocked(true)
	n.mu.Unlock()
	n.publish()
	return nil
}

// ResetOnboarding removes the onboarding flag so the next session starts
// at the onboarding screen.
func (n *Navigator) ResetOnboarding(ctx context.Context) error {
	if err := n.flags.RemoveItem(ctx, n.config.OnboardingKey); err != nil {
		return err
	}
	n.mu.Lock()
	n.settleOnboardingLocked(false)
	n.lastError = ""
	n.mu.Unlock()
	n.publish()
	return nil
}

func (n *Navigator) phaseLocked() Phase {
	return DerivePhase(n.authLoading, n.signingIn > 0 || n.checking, n.timedOut, n.lastError)
}

// syncLocked reads the store and reconciles local state with it. The
// onboarding flag is read in the background.
func (n *Navigator) syncLocked() {
	state := n.store.Current()
	n.authLoading = state.Loading || n.recovering > 0
	n.user = state.User

	switch {
	case n.authLoading || n.user == nil:
		n.checked = false
		n.dropCheckLocked()
	case n.checked && n.checkedUser == n.user.ID:
	case n.checking && n.checkedUser == n.user.ID:
	case !n.stopped:
		n.checkGen++
		n.checking = true
		n.checkedUser = n.user.ID
		go n.checkOnboarding(n.ctx, n.checkGen, n.user.ID)
	}
	n.updateTimerLocked()
}

// settleOnboardingLocked records a flag value written locally; it wins over
// any read still in flight.
func (n *Navigator) settleOnboardingLocked(onboarded bool) {
	n.dropCheckLocked()
	n.onboarded = onboarded
	n.checked = n.user != nil
	if n.user != nil {
		n.checkedUser = n.user.ID
	}
	n.updateTimerLocked()
}

func (n *Navigator) dropCheckLocked() {
	n.checkGen++
	n.checking = false
}

func (n *Navigator) checkOnboarding(ctx context.Context, gen uint64, userID string) {
	status, err := n.flags.GetItem(ctx, n.config.OnboardingKey)

	n.mu.Lock()
	if gen != n.checkGen {
		n.mu.Unlock()
		return
	}
	n.checking = false
	n.checked = true
	n.checkedUser = userID
	if err != nil {
		n.logger.WithError(err).Error("Error checking onboarding status")
		n.lastError = onboardingErr
		n.onboarded = false
	} else {
		n.logger.WithField("status", status).Debug("Onboarding status from storage")
		n.onboarded = status == "true"
	}
	n.updateTimerLocked()
	n.mu.Unlock()
	n.publish()
}

func (n *Navigator) waitingLocked() bool {
	return n.authLoading || n.signingIn > 0 || n.checking
}

// updateTimerLocked arms the loading timer when waiting starts and disarms it
// as soon as waiting ends.
func (n *Navigator) updateTimerLocked() {
	waiting := n.waitingLocked()
	switch {
	case waiting && n.timer == nil && !n.timedOut && !n.stopped:
		n.generation++
		gen := n.generation
		n.timer = n.clock.AfterFunc(n.config.LoadingTimeout, func() { n.fire(gen) })
	case !waiting:
		n.stopTimerLocked()
		n.timedOut = false
	}
}

func (n *Navigator) stopTimerLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	// Invalidates a callback that already started.
	n.generation++
}

func (n *Navigator) fire(gen uint64) {
	n.mu.Lock()
	if gen != n.generation {
		n.mu.Unlock()
		return
	}
	n.timer = nil

	state := n.store.Current()
	n.authLoading = state.Loading || n.recovering > 0
	if n.waitingLocked() {
		n.timedOut = true
		n.logger.WithFields(logrus.Fields{
			"timeout":      n.config.LoadingTimeout,
			"auth_loading": n.authLoading,
			"signing_in":   n.signingIn > 0,
			"checking":     n.checking,
		}).Warn("Loading timed out")
	}
	n.mu.Unlock()
	n.publish()
}

// publish reports the phase to watchers when it changed.
func (n *Navigator) publish() {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	n.mu.Lock()
	phase := n.phaseLocked()
	if phase == n.reported {
		n.mu.Unlock()
		return
	}
	previous := n.reported
	n.reported = phase
	fns := make([]func(Phase), 0, len(n.watchers))
	for _, fn := range n.watchers {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	n.logger.WithFields(logrus.Fields{"from": previous, "to": phase}).Debug("Phase changed")
	for _, fn := range fns {
		fn(phase)
	}
}

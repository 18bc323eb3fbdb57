package navigator

import "github.com/y0ug/glanceauth/pkg/authflow"

// Phase is what the UI shows while auth settles.
type Phase string

const (
	PhaseInitializing   Phase = "initializing"
	PhaseAuthenticating Phase = "authenticating"
	PhaseTimedOut       Phase = "timed_out"
	PhaseErrored        Phase = "errored"
	PhaseReady          Phase = "ready"
)

// Screen is the destination once the phase is Ready.
type Screen string

const (
	ScreenLogin      Screen = "login"
	ScreenOnboarding Screen = "onboarding"
	ScreenHome       Screen = "home"
)

const (
	timeoutMessage = "Loading is taking longer than expected. There might be an issue with authentication."
	onboardingErr  = "failed to check onboarding status"
)

// DerivePhase maps the loading inputs to exactly one phase.
func DerivePhase(authLoading, localLoading, timedOut bool, lastError string) Phase {
	switch {
	case lastError != "":
		return PhaseErrored
	case timedOut && (authLoading || localLoading):
		return PhaseTimedOut
	case localLoading:
		return PhaseAuthenticating
	case authLoading:
		return PhaseInitializing
	default:
		return PhaseReady
	}
}

// RouteScreen picks the screen for a settled auth state. A user whose
// onboarding flag is unknown goes to onboarding.
func RouteScreen(user *authflow.UserIdentity, onboarded bool) Screen {
	switch {
	case user == nil:
		return ScreenLogin
	case onboarded:
		return ScreenHome
	default:
		return ScreenOnboarding
	}
}

// View is a snapshot for rendering.
type View struct {
	Phase      Phase                  `json:"phase"`
	Screen     Screen                 `json:"screen,omitempty"`
	User       *authflow.UserIdentity `json:"user,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Action     string                 `json:"action,omitempty"`
	CanRecover bool                   `json:"can_recover"`
}

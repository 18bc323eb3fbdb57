package authflow

import "time"

// Provider identifies the identity provider used for a sign-in.
type Provider string

const (
	ProviderGoogle Provider = "google"
)

// AuthorizationRequest is built fresh for every sign-in attempt.
type AuthorizationRequest struct {
	Provider          Provider
	RedirectURI       string
	SkipInAppRedirect bool // Backend must return the URL instead of redirecting
}

// ResultType is the terminal state reported by an in-app browser session.
type ResultType string

const (
	ResultSuccess   ResultType = "success"
	ResultDismissed ResultType = "dismiss"
	ResultCancelled ResultType = "cancel"
	ResultFailed    ResultType = "failed"
)

// CallbackResult is what the browser hands back when its session ends.
type CallbackResult struct {
	Type   ResultType
	URL    string // Set for ResultSuccess
	Reason string // Set for ResultFailed
}

// ExtractedTokens holds the token material found in a callback URL.
type ExtractedTokens struct {
	AccessToken  string
	RefreshToken string
	ErrorCode    string
}

// TokenPair is what the backend needs to build a session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// UserIdentity describes the signed-in user.
type UserIdentity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider"`
}

// Session is the backend-issued credential bundle.
type Session struct {
	ID           string       `json:"id"`
	User         UserIdentity `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthState is the process-wide authentication state.
// User is non-nil iff Session is non-nil.
type AuthState struct {
	User    *UserIdentity
	Session *Session
	Loading bool
}

// SignedIn reports whether a session is present.
func (s AuthState) SignedIn() bool {
	return s.Session != nil
}

// AuthEvent names a backend-pushed auth change.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// OutcomeStatus is the top-level result of a sign-in.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// FailureReason classifies a failed sign-in so callers can decide whether to alert.
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonCancelled     FailureReason = "cancelled"
	ReasonDismissed     FailureReason = "dismissed"
	ReasonBrowserFailed FailureReason = "browser_failed"
	ReasonCallbackError FailureReason = "callback_error"
	ReasonTokenAbsent   FailureReason = "token_absent"
	ReasonEstablishment FailureReason = "establishment"
	ReasonConfiguration FailureReason = "configuration"
	ReasonBackend       FailureReason = "backend"
	ReasonBusy          FailureReason = "busy"
)

// SignInOutcome is returned to the UI layer. It never carries raw backend errors.
type SignInOutcome struct {
	Status  OutcomeStatus
	Reason  FailureReason
	Message string
}

// Succeeded reports whether the sign-in produced a session.
func (o SignInOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// UserCancelled reports whether the user backed out of the browser session.
func (o SignInOutcome) UserCancelled() bool {
	return o.Reason == ReasonCancelled || o.Reason == ReasonDismissed
}

func success() SignInOutcome {
	return SignInOutcome{Status: OutcomeSuccess}
}

func failure(reason FailureReason, message string) SignInOutcome {
	return SignInOutcome{Status: OutcomeFailure, Reason: reason, Message: message}
}

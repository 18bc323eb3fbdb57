package authflow

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a sign-in is already in flight on the controller.
var ErrBusy = errors.New("sign-in already in progress")

// ConfigurationError means the redirect URI is not accepted by the provider
// allow-list. It cannot be fixed without changing configuration.
type ConfigurationError struct {
	RedirectURI string
	Message     string
}

func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("redirect URI %q rejected: %s", e.RedirectURI, e.Message)
	}
	return fmt.Sprintf("redirect URI %q rejected", e.RedirectURI)
}

// CallbackError carries the error code reported by the provider in a callback URL.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	return e.Code
}

// EstablishmentError wraps a backend rejection of the token exchange.
type EstablishmentError struct {
	Err error
}

func (e *EstablishmentError) Error() string {
	return fmt.Sprintf("failed to establish session: %v", e.Err)
}

func (e *EstablishmentError) Unwrap() error {
	return e.Err
}

// SignOutError wraps a backend rejection of sign-out.
type SignOutError struct {
	Err error
}

func (e *SignOutError) Error() string {
	return fmt.Sprintf("failed to sign out: %v", e.Err)
}

func (e *SignOutError) Unwrap() error {
	return e.Err
}

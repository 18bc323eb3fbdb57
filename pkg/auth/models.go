package auth

import "time"

// HttpResp represents the standard HTTP response structure.
type HttpResp struct {
	Status  string      `json:"status" example:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message" example:"Operation completed successfully"`
}

type ProviderTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"` // Optional, as some providers may not issue refresh tokens
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the provider access token is past its expiry.
// A zero expiry never expires.
func (t ProviderTokens) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// PendingAuth is the broker-side record of an authorization in flight,
// keyed by the OAuth state parameter.
type PendingAuth struct {
	Provider          string    `json:"provider"`
	RedirectTo        string    `json:"redirect_to"`
	SkipInAppRedirect bool      `json:"skip_in_app_redirect"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshRequest is the body accepted by the refresh and logout endpoints.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserInfo represents the authenticated user's information.
type UserInfo struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider"`
}

// StatusResponse defines the structure of the /status response.
type StatusResponse struct {
	Authenticated bool     `json:"authenticated"`
	User          UserInfo `json:"user,omitempty"`
	Message       string   `json:"message,omitempty"`
}

package providers

import "golang.org/x/oauth2"

type ProviderUserInfo struct {
	Sub        string `json:"sub"`                   // User's unique identifier
	Name       string `json:"name"`                  // User's name
	Email      string `json:"email"`                 // User's email
	Provider   string `json:"provider"`              // OAuth2 provider name
	ProfileURL string `json:"profile_url,omitempty"` // User's profile URL (optional)
	Picture    string `json:"picture,omitempty"`     // User's picture URL (optional)
}

// ProviderConfig holds the OAuth2 configuration for a single provider.
type ProviderConfig struct {
	Name             string            // Name of the provider (e.g., google)
	Type             string            // Provider type
	ClientID         string            // OAuth2 Client ID
	ClientSecret     string            // OAuth2 Client Secret
	RedirectURL      string            // Broker callback registered with the provider
	AuthURL          string            // OAuth2 Authorization URL
	TokenURL         string            // OAuth2 Token URL
	UserInfoURL      string            // OAuth2 User Info URL
	WellKnownJwksURL string            // URL to fetch JWKs for ID token validation
	Scopes           []string          // OAuth2 Scopes
	AdditionalParams map[string]string // Extra authorization URL parameters
	OAuth2Config     *oauth2.Config    // OAuth2 configuration
}

// AuthCodeOptions converts AdditionalParams into oauth2 options.
func (c *ProviderConfig) AuthCodeOptions() []oauth2.AuthCodeOption {
	opts := make([]oauth2.AuthCodeOption, 0, len(c.AdditionalParams))
	for k, v := range c.AdditionalParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return opts
}

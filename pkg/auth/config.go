package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/y0ug/glanceauth/internal/envutil"
	"github.com/y0ug/glanceauth/pkg/auth/providers"
	"golang.org/x/oauth2"
)

// DefaultRedirectWhitelist accepts the production app scheme and the
// development callback shapes.
const DefaultRedirectWhitelist = "financeglance://auth/callback,exp://*,http://localhost:*,http://127.0.0.1:*"

// Config holds the broker configuration.
type Config struct {
	PublicURL              string // Externally reachable base URL of the broker
	JwtSecret              []byte
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
	AuthStateExpiration    time.Duration
	RedirectWhitelist      []string
	Providers              map[string]providers.Provider
}

// NewConfig initializes the authentication configuration from environment variables.
func NewConfig() (*Config, error) {
	authConfig := &Config{
		Providers: make(map[string]providers.Provider),
	}

	authConfig.PublicURL = strings.TrimRight(envutil.Get("AUTH_PUBLIC_URL", "http://localhost:8081"), "/")

	jwtSecret, err := envutil.GetBytes("JWT_SECRET")
	if err != nil {
		return nil, fmt.Errorf("error loading JWT_SECRET: %w", err)
	}
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET is empty")
	}
	authConfig.JwtSecret = jwtSecret

	authConfig.AccessTokenExpiration, err = envutil.GetDuration("ACCESS_TOKEN_EXPIRATION", "minutes=15")
	if err != nil {
		return nil, fmt.Errorf("error parsing ACCESS_TOKEN_EXPIRATION: %w", err)
	}

	authConfig.RefreshTokenExpiration, err = envutil.GetDuration("REFRESH_TOKEN_EXPIRATION", "days=7")
	if err != nil {
		return nil, fmt.Errorf("error parsing REFRESH_TOKEN_EXPIRATION: %w", err)
	}

	authConfig.AuthStateExpiration, err = envutil.GetDuration("AUTH_STATE_EXPIRATION", "minutes=10")
	if err != nil {
		return nil, fmt.Errorf("error parsing AUTH_STATE_EXPIRATION: %w", err)
	}

	authConfig.RedirectWhitelist = splitList(envutil.Get("REDIRECT_WHITELIST", DefaultRedirectWhitelist))

	providerNames := splitList(envutil.Get("OAUTH_PROVIDERS", "google"))
	if len(providerNames) == 0 {
		return nil, fmt.Errorf("OAUTH_PROVIDERS is empty")
	}

	for _, providerName := range providerNames {
		providerConfig, err := loadProviderConfig(providerName, authConfig.PublicURL)
		if err != nil {
			return nil, fmt.Errorf("error loading config for provider '%s': %w", providerName, err)
		}

		// Append default scopes if not already present
		for _, scope := range []string{"openid", "profile", "email"} {
			if !contains(providerConfig.Scopes, scope) {
				providerConfig.Scopes = append(providerConfig.Scopes, scope)
			}
		}

		initializeOAuth2Config(providerConfig)

		provider, err := newProvider(providerConfig)
		if err != nil {
			return nil, err
		}
		authConfig.Providers[providerName] = provider
	}

	return authConfig, nil
}

// newProvider instantiates the provider based on type.
func newProvider(providerConfig *providers.ProviderConfig) (providers.Provider, error) {
	switch strings.ToLower(providerConfig.Type) {
	case "google":
		return providers.NewGoogleProvider(providerConfig), nil
	default:
		return nil, fmt.Errorf("%w: type '%s' for '%s'", ErrUnknownProvider, providerConfig.Type, providerConfig.Name)
	}
}

// RedirectAllowed reports whether redirectURI matches the whitelist. Entries
// ending in '*' match by prefix, all others must match exactly.
func (c *Config) RedirectAllowed(redirectURI string) bool {
	if redirectURI == "" {
		return false
	}
	for _, allowed := range c.RedirectWhitelist {
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
			if strings.HasPrefix(redirectURI, prefix) {
				return true
			}
			continue
		}
		if redirectURI == allowed {
			return true
		}
	}
	return false
}

// contains checks if a slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadProviderConfig loads the configuration for a single OAuth2 provider.
func loadProviderConfig(providerName, publicURL string) (*providers.ProviderConfig, error) {
	prefix := fmt.Sprintf("OAUTH_%s_", strings.ToUpper(providerName))

	// Start with default configuration if available
	var providerConfig providers.ProviderConfig
	if defaultConfig, hasDefault := providers.DefaultConfigs[providerName]; hasDefault {
		providerConfig = *defaultConfig
		providerConfig.Scopes = append([]string(nil), defaultConfig.Scopes...)
	} else {
		providerConfig = providers.ProviderConfig{Name: providerName}
	}

	// Overwrite with environment variables
	providerConfig.Type = envutil.Get(prefix+"TYPE", providerConfig.Type)
	providerConfig.ClientID = envutil.Get(prefix+"CLIENT_ID", providerConfig.ClientID)
	providerConfig.ClientSecret = envutil.Get(prefix+"CLIENT_SECRET", providerConfig.ClientSecret)
	providerConfig.RedirectURL = envutil.Get(prefix+"REDIRECT_URL", publicURL+"/auth/callback/"+providerName)
	providerConfig.AuthURL = envutil.Get(prefix+"AUTH_URL", providerConfig.AuthURL)
	providerConfig.TokenURL = envutil.Get(prefix+"TOKEN_URL", providerConfig.TokenURL)
	providerConfig.UserInfoURL = envutil.Get(prefix+"USERINFO_URL", providerConfig.UserInfoURL)
	providerConfig.WellKnownJwksURL = envutil.Get(prefix+"JWKS_URL", providerConfig.WellKnownJwksURL)

	if providerConfig.ClientID == "" {
		return nil, fmt.Errorf("%sCLIENT_ID is not set", prefix)
	}

	providerConfig.Scopes = splitList(envutil.Get(prefix+"SCOPES", strings.Join(providerConfig.Scopes, ",")))

	additionalParams := parseAdditionalParams(envutil.Get(prefix+"ADDITIONAL_PARAMS", ""))
	if len(additionalParams) > 0 {
		providerConfig.AdditionalParams = additionalParams
	}

	return &providerConfig, nil
}

// initializeOAuth2Config sets up the OAuth2 configuration for a provider.
func initializeOAuth2Config(providerConfig *providers.ProviderConfig) {
	providerConfig.OAuth2Config = &oauth2.Config{
		ClientID:     providerConfig.ClientID,
		ClientSecret: providerConfig.ClientSecret,
		RedirectURL:  providerConfig.RedirectURL,
		Scopes:       providerConfig.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  providerConfig.AuthURL,
			TokenURL: providerConfig.TokenURL,
		},
	}
}

func parseAdditionalParams(s string) map[string]string {
	params := make(map[string]string)
	if s == "" {
		return params
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return params
}

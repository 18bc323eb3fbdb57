package authflow

import (
	"fmt"

	"github.com/y0ug/glanceauth/internal/envutil"
)

const (
	DefaultAppScheme    = "financeglance"
	DefaultCallbackPath = "auth/callback"
	DefaultDevScheme    = "exp"
	DefaultDevHost      = "localhost"
	DefaultDevPort      = "8081"
	devCallbackPath     = "/--/auth-callback"
)

// Config holds the sign-in flow configuration.
type Config struct {
	Provider Provider
	Redirect RedirectConfig
}

// RedirectConfig controls how the callback URI is computed.
type RedirectConfig struct {
	Development  bool
	AppScheme    string
	CallbackPath string
	DevScheme    string
	DevHost      string
	DevPort      string
}

// LoadConfig loads the sign-in flow configuration from environment variables.
func LoadConfig() (*Config, error) {
	provider := Provider(envutil.Get("AUTH_PROVIDER", string(ProviderGoogle)))
	if provider != ProviderGoogle {
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER: %s", provider)
	}

	return &Config{
		Provider: provider,
		Redirect: RedirectConfig{
			Development:  envutil.IsDev(),
			AppScheme:    envutil.Get("APP_SCHEME", DefaultAppScheme),
			CallbackPath: envutil.Get("APP_CALLBACK_PATH", DefaultCallbackPath),
			DevScheme:    envutil.Get("DEV_SCHEME", DefaultDevScheme),
			DevHost:      envutil.Get("DEV_HOST", DefaultDevHost),
			DevPort:      envutil.Get("DEV_PORT", DefaultDevPort),
		},
	}, nil
}

// withDefaults fills empty fields so a zero RedirectConfig is usable.
func (c RedirectConfig) withDefaults() RedirectConfig {
	if c.AppScheme == "" {
		c.AppScheme = DefaultAppScheme
	}
	if c.CallbackPath == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if c.DevScheme == "" {
		c.DevScheme = DefaultDevScheme
	}
	if c.DevHost == "" {
		c.DevHost = DefaultDevHost
	}
	if c.DevPort == "" {
		c.DevPort = DefaultDevPort
	}
	return c
}

package navigator

import (
	"fmt"
	"time"

	"github.com/y0ug/glanceauth/internal/envutil"
)

const (
	DefaultLoadingTimeout = 10 * time.Second
	DefaultOnboardingKey  = "hasCompletedOnboarding"
)

// Config holds the navigator configuration.
type Config struct {
	LoadingTimeout time.Duration
	OnboardingKey  string
}

// LoadConfig loads the navigator configuration from environment variables.
func LoadConfig() (*Config, error) {
	timeout, err := envutil.GetDuration("LOADING_TIMEOUT", "seconds=10")
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("LOADING_TIMEOUT must be positive")
	}
	return &Config{
		LoadingTimeout: timeout,
		OnboardingKey:  envutil.Get("ONBOARDING_KEY", DefaultOnboardingKey),
	}, nil
}

func (c Config) withDefaults() Config {
	if c.LoadingTimeout <= 0 {
		c.LoadingTimeout = DefaultLoadingTimeout
	}
	if c.OnboardingKey == "" {
		c.OnboardingKey = DefaultOnboardingKey
	}
	return c
}

package webserver

import (
	"fmt"
	"strconv"

	"github.com/y0ug/glanceauth/internal/envutil"
	"golang.org/x/time/rate"
)

// WebserverConfig holds the configuration for the webserver.
type WebserverConfig struct {
	ListenTo           string
	CorsAllowedOrigins []string
	LinkRateLimit      rate.Limit // Deep links accepted per second
	LinkBurst          int
}

// NewWebserverConfig initializes the webserver configuration from environment variables.
func NewWebserverConfig() (*WebserverConfig, error) {
	config := &WebserverConfig{
		ListenTo:           ":" + envutil.Get("PORT", "8081"),
		CorsAllowedOrigins: envutil.GetList("CORS_ALLOWED_ORIGINS"),
		LinkBurst:          5,
	}

	limit, err := strconv.ParseFloat(envutil.Get("LINK_RATE_LIMIT", "2"), 64)
	if err != nil || limit <= 0 {
		return nil, fmt.Errorf("invalid LINK_RATE_LIMIT value: %q", envutil.Get("LINK_RATE_LIMIT", ""))
	}
	config.LinkRateLimit = rate.Limit(limit)

	return config, nil
}

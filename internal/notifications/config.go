package notifications

import (
	"github.com/y0ug/glanceauth/internal/envutil"
)

// NotificationConfig holds the notification-related configuration.
type NotificationConfig struct {
	ShoutrrrURLs []string
}

// LoadNotificationConfig loads notification configuration from environment
// variables. With no SHOUTRRR_URLS alerts are only logged.
func LoadNotificationConfig() (*NotificationConfig, error) {
	return &NotificationConfig{
		ShoutrrrURLs: envutil.GetList("SHOUTRRR_URLS"),
	}, nil
}

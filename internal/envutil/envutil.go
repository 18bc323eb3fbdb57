package envutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Get retrieves the value of the environment variable named by the key.
// It returns the value, or the defaultValue if the variable is not present.
func Get(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetBytes retrieves the byte slice value of the environment variable named by the key.
// It returns an error if the variable is not set.
func GetBytes(key string) ([]byte, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return nil, fmt.Errorf("environment variable %s not set", key)
	}
	return []byte(value), nil
}

// GetBool parses a boolean environment variable.
func GetBool(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid boolean for %s: '%s'", key, value)
	}
	return b, nil
}

// GetDuration parses a duration environment variable in the ParseDuration format.
func GetDuration(key, defaultValue string) (time.Duration, error) {
	d, err := ParseDuration(Get(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return d, nil
}

// GetList splits a comma-separated environment variable, dropping empty entries.
func GetList(key string) []string {
	var result []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsDev checks if we're running in development mode.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	return env == "development" || env == "dev"
}

// ParseDuration parses a duration string formatted as "minutes=1, hours=2, days=3, seconds=30"
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(s, ",")
	var totalDuration time.Duration

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyValue := strings.SplitN(part, "=", 2)
		if len(keyValue) != 2 {
			return 0, fmt.Errorf("invalid format for part: '%s'", part)
		}
		key := strings.ToLower(strings.TrimSpace(keyValue[0]))
		valueStr := strings.TrimSpace(keyValue[1])
		value, err := strconv.Atoi(valueStr)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: '%s'", key, valueStr)
		}

		switch key {
		case "milliseconds":
			totalDuration += time.Duration(value) * time.Millisecond
		case "seconds":
			totalDuration += time.Duration(value) * time.Second
		case "minutes":
			totalDuration += time.Duration(value) * time.Minute
		case "hours":
			totalDuration += time.Duration(value) * time.Hour
		case "days":
			totalDuration += time.Duration(value) * 24 * time.Hour
		default:
			return 0, fmt.Errorf("unknown time unit: '%s'", key)
		}
	}

	return totalDuration, nil
}

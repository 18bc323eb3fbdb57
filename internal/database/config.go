package database

import (
	"fmt"
	"strconv"
	"time"

	"github.com/y0ug/glanceauth/internal/envutil"
)

// DatabaseConfig holds the database-related configuration.
type DatabaseConfig struct {
	Type            string
	Path            string
	RedisAddr       string
	RedisPass       string
	RedisDB         int
	CleanupInterval time.Duration
}

// LoadDatabaseConfig loads database configuration from environment variables.
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	config := &DatabaseConfig{
		Type: envutil.Get("DATABASE_TYPE", "sqlite"),
	}

	interval, err := envutil.GetDuration("CLEANUP_INTERVAL", "minutes=15")
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	config.CleanupInterval = interval

	switch config.Type {
	case "sqlite":
		config.Path = envutil.Get("DATABASE_PATH", "glanceauth.db")
	case "bolt":
		config.Path = envutil.Get("DATABASE_PATH", "")
		if config.Path == "" {
			return nil, fmt.Errorf("DATABASE_PATH is required for BoltDB")
		}
	case "redis":
		config.RedisAddr = envutil.Get("REDIS_ADDR", "")
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for RedisDB")
		}
		config.RedisPass = envutil.Get("REDIS_PASSWORD", "")
		dbStr := envutil.Get("REDIS_DB", "")
		if dbStr != "" {
			db, err := strconv.Atoi(dbStr)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_DB value: %v", err)
			}
			config.RedisDB = db
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", config.Type)
	}

	return config, nil
}

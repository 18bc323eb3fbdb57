package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/auth"
)

// Database is the storage required by the broker and the client: auth
// records plus a string key/value store for the session and app flags.
type Database interface {
	auth.Database
	auth.Storage

	// PurgeExpired deletes expired blacklist entries, refresh tokens and
	// pending authorizations, returning how many records were removed.
	PurgeExpired(ctx context.Context) (int, error)

	Close(ctx context.Context) error
}

// New opens the backend selected by cfg.Type.
func New(cfg *DatabaseConfig, logger *logrus.Logger) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteDB(cfg.Path, logger)
	case "bolt":
		return NewBoltDB(cfg.Path, logger)
	case "redis":
		return NewRedisDB(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

package database

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Purger is the part of Database the cleanup loop needs.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Cleaner periodically purges expired records.
type Cleaner struct {
	db       Purger
	interval time.Duration
	clock    clockwork.Clock
	logger   *logrus.Logger
}

// NewCleaner creates a cleaner running every interval on clock.
func NewCleaner(db Purger, interval time.Duration, clock clockwork.Clock, logger *logrus.Logger) *Cleaner {
	return &Cleaner{
		db:       db,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Start purges immediately and then on every tick until ctx is done.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.purge(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info("Cleanup stopped due to context cancellation")
			return
		case <-ticker.Chan():
		}
	}
}

func (c *Cleaner) purge(ctx context.Context) {
	removed, err := c.db.PurgeExpired(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to purge expired records")
		return
	}
	if removed > 0 {
		c.logger.WithField("removed", removed).Info("Purged expired records")
	}
}

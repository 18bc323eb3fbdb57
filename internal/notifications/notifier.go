package notifications

import (
	"context"
	"errors"

	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"
)

type sender interface {
	Send(message string, params *types.Params) []error
}

// Notifier delivers user-facing alerts via Shoutrrr. Every alert is also
// logged, so a Notifier without services still surfaces it.
type Notifier struct {
	sr     sender
	logger *logrus.Logger
}

// NewNotifier initializes a Notifier with the provided Shoutrrr URLs.
func NewNotifier(urls []string, logger *logrus.Logger) (*Notifier, error) {
	n := &Notifier{logger: logger}
	if len(urls) == 0 {
		return n, nil
	}
	sr, err := router.New(nil, urls...)
	if err != nil {
		return nil, err
	}
	n.sr = sr
	return n, nil
}

// Alert shows a one-shot message. It returns the joined delivery errors.
func (n *Notifier) Alert(ctx context.Context, title, message string) error {
	n.logger.WithFields(logrus.Fields{
		"title":   title,
		"message": message,
	}).Warn("Alert")

	if n.sr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := types.Params{
		"title": title,
	}
	var errs []error
	for _, err := range n.sr.Send(message, &params) {
		if err != nil {
			n.logger.WithError(err).Error("Failed to send notification")
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		n.logger.Info("Notification sent successfully")
	}
	return errors.Join(errs...)
}

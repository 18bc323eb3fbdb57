package authflow

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// SessionEstablisher turns extracted tokens into a backend session.
// It never writes AuthState; the Store does that.
type SessionEstablisher struct {
	backend Backend
	logger  *logrus.Logger
}

// NewSessionEstablisher creates a SessionEstablisher.
func NewSessionEstablisher(backend Backend, logger *logrus.Logger) *SessionEstablisher {
	return &SessionEstablisher{backend: backend, logger: logger}
}

// Establish asks the backend to set a session from tokens. Nil tokens mean
// there is nothing to establish and return (nil, nil).
func (e *SessionEstablisher) Establish(ctx context.Context, tokens *ExtractedTokens) (*Session, error) {
	if tokens == nil || tokens.AccessToken == "" {
		e.logger.Warn("No access token found in callback URL")
		return nil, nil
	}

	session, err := e.backend.SetSession(ctx, TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		e.logger.WithError(err).Error("Backend rejected session tokens")
		return nil, &EstablishmentError{Err: err}
	}
	if session == nil {
		return nil, &EstablishmentError{Err: errors.New("backend returned no session")}
	}

	e.logger.WithField("user_id", session.User.ID).Info("Session successfully created")
	return session, nil
}

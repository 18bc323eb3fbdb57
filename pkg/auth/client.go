package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

const (
	// SessionStorageKey is the Storage key holding the persisted session.
	SessionStorageKey = "auth.session"

	defaultRefreshMargin = 30 * time.Second
)

// Client is the in-process auth backend used by the sign-in flow. It keeps
// the current session in Storage and talks to the Broker directly.
type Client struct {
	broker        *Broker
	storage       Storage
	logger        *logrus.Logger
	refreshMargin time.Duration
	now           func() time.Time

	mu        sync.Mutex // Serializes session reads and writes
	listeners sync.Map   // subscription id -> func(authflow.AuthEvent, *authflow.Session)
}

var _ authflow.Backend = (*Client)(nil)

// NewClient creates a client persisting its session in storage.
func NewClient(broker *Broker, storage Storage, logger *logrus.Logger) *Client {
	return &Client{
		broker:        broker,
		storage:       storage,
		logger:        logger,
		refreshMargin: defaultRefreshMargin,
		now:           time.Now,
	}
}

// GetSession returns the stored session, rotating its tokens when the access
// token is about to expire. A rejected refresh token signs the user out.
func (c *Client) GetSession(ctx context.Context) (*authflow.Session, error) {
	c.mu.Lock()
	session, err := c.loadLocked(ctx)
	if err != nil || session == nil {
		c.mu.Unlock()
		return nil, err
	}

	if !session.Expired(c.now().Add(c.refreshMargin)) {
		c.mu.Unlock()
		return session, nil
	}

	tokens, err := c.broker.RotateRefreshToken(ctx, session.RefreshToken)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			c.mu.Unlock()
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		c.logger.WithError(err).Info("Session refresh rejected, signing out")
		removeErr := c.storage.RemoveItem(ctx, SessionStorageKey)
		c.mu.Unlock()
		if removeErr != nil {
			return nil, fmt.Errorf("failed to clear session: %w", removeErr)
		}
		c.emit(authflow.EventSignedOut, nil)
		return nil, nil
	}

	refreshed, err := c.sessionFromTokens(ctx, authflow.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err == nil {
		err = c.saveLocked(ctx, refreshed)
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.emit(authflow.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// SetSession verifies the callback tokens and makes them the current session.
func (c *Client) SetSession(ctx context.Context, tokens authflow.TokenPair) (*authflow.Session, error) {
	session, err := c.sessionFromTokens(ctx, tokens)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	err = c.saveLocked(ctx, session)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.logger.WithField("user_id", session.User.ID).Info("Session established")
	c.emit(authflow.EventSignedIn, session)
	return session, nil
}

// SignOut revokes the stored session and removes it. Signing out with no
// session is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session, err := c.loadLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if session != nil {
		if err := c.broker.Revoke(ctx, session.AccessToken, session.RefreshToken); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	err = c.storage.RemoveItem(ctx, SessionStorageKey)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	c.emit(authflow.EventSignedOut, nil)
	return nil
}

// SignInWithOAuth returns the authorization URL for req.
func (c *Client) SignInWithOAuth(ctx context.Context, req authflow.AuthorizationRequest) (string, error) {
	return c.broker.BeginAuthorization(ctx, req)
}

// OnAuthChange registers fn for session changes made through this client.
func (c *Client) OnAuthChange(fn func(event authflow.AuthEvent, session *authflow.Session)) authflow.Subscription {
	id := uuid.NewString()
	c.listeners.Store(id, fn)
	return authflow.SubscriptionFunc(func() {
		c.listeners.Delete(id)
	})
}

func (c *Client) emit(event authflow.AuthEvent, session *authflow.Session) {
	c.listeners.Range(func(_, value any) bool {
		fn := value.(func(authflow.AuthEvent, *authflow.Session))
		var cp *authflow.Session
		if session != nil {
			s := *session
			cp = &s
		}
		fn(event, cp)
		return true
	})
}

func (c *Client) sessionFromTokens(ctx context.Context, tokens authflow.TokenPair) (*authflow.Session, error) {
	claims, err := c.broker.VerifyAccessToken(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	session := &authflow.Session{
		ID:           claimString(claims, "sid"),
		User:         identityFromClaims(claims),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokenTypeAccess,
	}
	if exp, ok := claims["exp"].(float64); ok {
		session.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return session, nil
}

func (c *Client) loadLocked(ctx context.Context) (*authflow.Session, error) {
	raw, err := c.storage.GetItem(ctx, SessionStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	var session authflow.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		c.logger.WithError(err).Warn("Discarding unreadable stored session")
		return nil, nil
	}
	return &session, nil
}

func (c *Client) saveLocked(ctx context.Context, session *authflow.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.storage.SetItem(ctx, SessionStorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func identityFromClaims(claims jwt.MapClaims) authflow.UserIdentity {
	info := userInfoFromClaims(claims)
	return authflow.UserIdentity{
		ID:       info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Picture:  info.Picture,
		Provider: info.Provider,
	}
}

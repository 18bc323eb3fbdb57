package auth

import (
	"context"
	"time"
)

// Database defines the interface for database operations needed by the auth package.
type Database interface {
	// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
	AddBlacklistedToken(ctx context.Context, token string, expiresAt int64) error

	// IsTokenBlacklisted checks if a token is in the blacklist.
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)

	// StoreRefreshToken saves a refresh token with associated user and expiration.
	StoreRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error

	// ValidateRefreshToken returns the user bound to token. Unknown or
	// expired tokens yield ErrInvalidToken.
	ValidateRefreshToken(ctx context.Context, token string) (userID string, err error)

	// RevokeRefreshToken removes a refresh token from the database.
	RevokeRefreshToken(ctx context.Context, token string) error

	// StoreProviderTokens upserts the provider's tokens for a user.
	StoreProviderTokens(ctx context.Context, userID, provider string, tokens ProviderTokens) error

	// GetProviderTokens returns ErrTokenNotFound when nothing is stored.
	GetProviderTokens(ctx context.Context, userID, provider string) (ProviderTokens, error)

	// StoreAuthState records a pending authorization under state.
	StoreAuthState(ctx context.Context, state string, pending PendingAuth) error

	// PeekAuthState returns the pending authorization without removing it.
	// Unknown or expired states yield ErrStateNotFound.
	PeekAuthState(ctx context.Context, state string) (PendingAuth, error)

	// ConsumeAuthState returns and deletes the pending authorization. Unknown
	// or expired states yield ErrStateNotFound.
	ConsumeAuthState(ctx context.Context, state string) (PendingAuth, error)
}

// Storage is a string key/value store. GetItem returns "" for a missing key.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

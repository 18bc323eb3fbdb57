package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/auth"
)

// RedisDB implements the Database interface using Redis. Expiring records
// carry a TTL so Redis evicts them itself.
type RedisDB struct {
	client *redis.Client
	logger *logrus.Logger
	now    func() time.Time
}

// NewRedisDB initializes a new RedisDB instance.
func NewRedisDB(cfg *DatabaseConfig, logger *logrus.Logger) (*RedisDB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisDBWithClient(rdb, logger), nil
}

func newRedisDBWithClient(client *redis.Client, logger *logrus.Logger) *RedisDB {
	return &RedisDB{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the Redis client connection.
func (r *RedisDB) Close(ctx context.Context) error {
	return r.client.Close()
}

// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
func (r *RedisDB) AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error {
	ttl := time.Unix(exp, 0).Sub(r.now())
	if ttl <= 0 {
		// Token already expired; no need to blacklist
		return nil
	}

	key := fmt.Sprintf("blacklist:%s", tokenString)
	return r.client.Set(ctx, key, "1", ttl).Err()
}

// IsTokenBlacklisted checks if a token is in the blacklist.
func (r *RedisDB) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	key := fmt.Sprintf("blacklist:%s", tokenString)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// StoreRefreshToken saves a refresh token with associated user and expiration.
func (r *RedisDB) StoreRefreshToken(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	key := fmt.Sprintf("refresh_token:%s", token)

	encoded, err := encodeRefreshToken(userID, expiresAt)
	if err != nil {
		return err
	}

	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("invalid expiration time for refresh token")
	}

	return r.client.Set(ctx, key, encoded, ttl).Err()
}

// ValidateRefreshToken checks if a refresh token is valid and not expired.
// Returns the associated userID if valid.
func (r *RedisDB) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf("refresh_token:%s", token)

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: refresh token not found", auth.ErrInvalidToken)
		}
		return "", err
	}

	record, err := decodeRefreshToken([]byte(val))
	if err != nil {
		return "", err
	}

	if r.now().After(record.ExpiresAt) {
		if err := r.RevokeRefreshToken(ctx, token); err != nil {
			r.logger.WithError(err).Error("Failed to revoke expired refresh token")
		}
		return "", fmt.Errorf("%w: refresh token expired", auth.ErrInvalidToken)
	}

	return record.UserID, nil
}

// RevokeRefreshToken removes a refresh token from the database.
func (r *RedisDB) RevokeRefreshToken(ctx context.Context, token string) error {
	key := fmt.Sprintf("refresh_token:%s", token)
	return r.client.Del(ctx, key).Err()
}

// StoreProviderTokens stores the provider's tokens for a user. No TTL is set
// since the provider refresh token outlives the access token.
func (r *RedisDB) StoreProviderTokens(ctx context.Context, userID, provider string, tokens auth.ProviderTokens) error {
	key := fmt.Sprintf("provider_tokens:%s", generateProviderKey(provider, userID))
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal ProviderTokens: %w", err)
	}
	return r.client.Set(ctx, key, encoded, 0).Err()
}

// GetProviderTokens retrieves the provider's tokens for a user.
func (r *RedisDB) GetProviderTokens(ctx context.Context, userID, provider string) (auth.ProviderTokens, error) {
	var tokens auth.ProviderTokens

	key := fmt.Sprintf("provider_tokens:%s", generateProviderKey(provider, userID))
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tokens, fmt.Errorf("%w: provider tokens for user %s and provider %s", auth.ErrTokenNotFound, userID, provider)
		}
		return tokens, err
	}

	if err := json.Unmarshal([]byte(val), &tokens); err != nil {
		return tokens, fmt.Errorf("failed to unmarshal ProviderTokens: %w", err)
	}
	return tokens, nil
}

// StoreAuthState records a pending authorization until it expires.
func (r *RedisDB) StoreAuthState(ctx context.Context, state string, pending auth.PendingAuth) error {
	ttl := pending.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("invalid expiration time for auth state")
	}
	encoded, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal PendingAuth: %w", err)
	}
	return r.client.Set(ctx, "auth_state:"+state, encoded, ttl).Err()
}

// PeekAuthState reads a pending authorization and leaves it in place.
func (r *RedisDB) PeekAuthState(ctx context.Context, state string) (auth.PendingAuth, error) {
	var pending auth.PendingAuth

	val, err := r.client.Get(ctx, "auth_state:"+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return pending, auth.ErrStateNotFound
		}
		return pending, err
	}
	if err := json.Unmarshal([]byte(val), &pending); err != nil {
		return pending, fmt.Errorf("failed to unmarshal PendingAuth: %w", err)
	}
	if r.now().After(pending.ExpiresAt) {
		return auth.PendingAuth{}, auth.ErrStateNotFound
	}
	return pending, nil
}

// ConsumeAuthState reads and deletes a pending authorization in one GETDEL,
// so concurrent callbacks cannot both redeem it.
func (r *RedisDB) ConsumeAuthState(ctx context.Context, state string) (auth.PendingAuth, error) {
	var pending auth.PendingAuth

	val, err := r.client.GetDel(ctx, "auth_state:"+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return pending, auth.ErrStateNotFound
		}
		return pending, err
	}

	if err := json.Unmarshal([]byte(val), &pending); err != nil {
		return pending, fmt.Errorf("failed to unmarshal PendingAuth: %w", err)
	}
	if r.now().After(pending.ExpiresAt) {
		return auth.PendingAuth{}, auth.ErrStateNotFound
	}
	return pending, nil
}

// GetItem returns the stored value or "" when key is absent.
func (r *RedisDB) GetItem(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, "item:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// SetItem stores value under key without expiry.
func (r *RedisDB) SetItem(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, "item:"+key, value, 0).Err()
}

// RemoveItem deletes key.
func (r *RedisDB) RemoveItem(ctx context.Context, key string) error {
	return r.client.Del(ctx, "item:"+key).Err()
}

// PurgeExpired is a no-op: every expiring key has a TTL.
func (r *RedisDB) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/auth"
	"go.etcd.io/bbolt"
)

var (
	bucketBlacklistedTokens = []byte("BlacklistedTokens")
	bucketRefreshTokens     = []byte("RefreshTokens")
	bucketProviderTokens    = []byte("ProviderTokens")
	bucketAuthStates        = []byte("AuthStates")
	bucketItems             = []byte("Items")
)

// BoltDB implements the Database interface using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	path   string
	logger *logrus.Logger
	now    func() time.Time
}

// NewBoltDB initializes a new BoltDB instance.
func NewBoltDB(path string, logger *logrus.Logger) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	boltDB := &BoltDB{
		db:     db,
		path:   path,
		logger: logger,
		now:    time.Now,
	}

	if err := boltDB.Initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return boltDB, nil
}

// Initialize sets up the necessary buckets.
func (b *BoltDB) Initialize() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBlacklistedTokens, bucketRefreshTokens, bucketProviderTokens, bucketAuthStates, bucketItems} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the bolt file.
func (b *BoltDB) Close(context.Context) error {
	return b.db.Close()
}

func (b *BoltDB) put(bucket, key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

func (b *BoltDB) get(bucket, key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucket).Get(key); v != nil {
			// bolt values are only valid inside the transaction
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (b *BoltDB) delete(bucket, key []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
func (b *BoltDB) AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to marshal expiration time: %w", err)
	}
	if err := b.put(bucketBlacklistedTokens, []byte(tokenString), data); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsTokenBlacklisted checks if a token is in the blacklist.
// If the token is expired, it removes it from the blacklist.
func (b *BoltDB) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	val, err := b.get(bucketBlacklistedTokens, []byte(tokenString))
	if err != nil || val == nil {
		return false, err
	}

	var exp int64
	if err := json.Unmarshal(val, &exp); err != nil || exp == 0 {
		// Invalid expiration data; treat as not blacklisted
		return false, nil
	}

	if b.now().Unix() > exp {
		if err := b.delete(bucketBlacklistedTokens, []byte(tokenString)); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// StoreRefreshToken saves a refresh token with associated user and expiration.
func (b *BoltDB) StoreRefreshToken(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	encoded, err := encodeRefreshToken(userID, expiresAt)
	if err != nil {
		return err
	}
	return b.put(bucketRefreshTokens, []byte(token), encoded)
}

// ValidateRefreshToken checks if a refresh token is valid and not expired.
func (b *BoltDB) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	val, err := b.get(bucketRefreshTokens, []byte(token))
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", fmt.Errorf("%w: refresh token not found", auth.ErrInvalidToken)
	}

	record, err := decodeRefreshToken(val)
	if err != nil {
		return "", err
	}
	if b.now().After(record.ExpiresAt) {
		if err := b.RevokeRefreshToken(ctx, token); err != nil {
			b.logger.WithError(err).Error("Failed to revoke expired refresh token")
		}
		return "", fmt.Errorf("%w: refresh token expired", auth.ErrInvalidToken)
	}
	return record.UserID, nil
}

// RevokeRefreshToken removes a refresh token from the database.
func (b *BoltDB) RevokeRefreshToken(ctx context.Context, token string) error {
	return b.delete(bucketRefreshTokens, []byte(token))
}

// StoreProviderTokens stores the provider's tokens for a user.
func (b *BoltDB) StoreProviderTokens(ctx context.Context, userID, provider string, tokens auth.ProviderTokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal ProviderTokens: %w", err)
	}
	if err := b.put(bucketProviderTokens, generateProviderKey(provider, userID), data); err != nil {
		return fmt.Errorf("failed to store provider tokens: %w", err)
	}
	return nil
}

// GetProviderTokens retrieves the provider's tokens for a user.
func (b *BoltDB) GetProviderTokens(ctx context.Context, userID, provider string) (auth.ProviderTokens, error) {
	var tokens auth.ProviderTokens

	val, err := b.get(bucketProviderTokens, generateProviderKey(provider, userID))
	if err != nil {
		return tokens, err
	}
	if val == nil {
		return tokens, fmt.Errorf("%w: provider tokens for user %s and provider %s", auth.ErrTokenNotFound, userID, provider)
	}
	if err := json.Unmarshal(val, &tokens); err != nil {
		return tokens, fmt.Errorf("failed to unmarshal ProviderTokens: %w", err)
	}
	return tokens, nil
}

// StoreAuthState records a pending authorization.
func (b *BoltDB) StoreAuthState(ctx context.Context, state string, pending auth.PendingAuth) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal PendingAuth: %w", err)
	}
	return b.put(bucketAuthStates, []byte(state), data)
}

// PeekAuthState reads a pending authorization and leaves it in place.
func (b *BoltDB) PeekAuthState(ctx context.Context, state string) (auth.PendingAuth, error) {
	var pending auth.PendingAuth
	val, err := b.get(bucketAuthStates, []byte(state))
	if err != nil {
		return pending, err
	}
	if val == nil {
		return pending, auth.ErrStateNotFound
	}
	if err := json.Unmarshal(val, &pending); err != nil {
		return pending, fmt.Errorf("failed to unmarshal PendingAuth: %w", err)
	}
	if b.now().After(pending.ExpiresAt) {
		return auth.PendingAuth{}, auth.ErrStateNotFound
	}
	return pending, nil
}

// ConsumeAuthState reads and deletes a pending authorization in one transaction.
func (b *BoltDB) ConsumeAuthState(ctx context.Context, state string) (auth.PendingAuth, error) {
	var pending auth.PendingAuth
	found := false

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuthStates)
		val := bucket.Get([]byte(state))
		if val == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(val, &pending); err != nil {
			return fmt.Errorf("failed to unmarshal PendingAuth: %w", err)
		}
		return bucket.Delete([]byte(state))
	})
	if err != nil {
		return pending, err
	}
	if !found || b.now().After(pending.ExpiresAt) {
		return auth.PendingAuth{}, auth.ErrStateNotFound
	}
	return pending, nil
}

// GetItem returns the stored value or "" when key is absent.
func (b *BoltDB) GetItem(ctx context.Context, key string) (string, error) {
	val, err := b.get(bucketItems, []byte(key))
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// SetItem stores value under key.
func (b *BoltDB) SetItem(ctx context.Context, key, value string) error {
	return b.put(bucketItems, []byte(key), []byte(value))
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (b *BoltDB) RemoveItem(ctx context.Context, key string) error {
	return b.delete(bucketItems, []byte(key))
}

// PurgeExpired walks the expiring buckets and deletes stale records.
func (b *BoltDB) PurgeExpired(ctx context.Context) (int, error) {
	now := b.now()
	removed := 0

	err := b.db.Update(func(tx *bbolt.Tx) error {
		purge := func(bucket []byte, expired func(v []byte) bool) error {
			bkt := tx.Bucket(bucket)
			var stale [][]byte
			err := bkt.ForEach(func(k, v []byte) error {
				if expired(v) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			// deleting inside ForEach is not allowed
			for _, k := range stale {
				if err := bkt.Delete(k); err != nil {
					return err
				}
			}
			removed += len(stale)
			return nil
		}

		if err := purge(bucketBlacklistedTokens, func(v []byte) bool {
			var exp int64
			return json.Unmarshal(v, &exp) != nil || exp < now.Unix()
		}); err != nil {
			return err
		}
		if err := purge(bucketRefreshTokens, func(v []byte) bool {
			record, err := decodeRefreshToken(v)
			return err != nil || now.After(record.ExpiresAt)
		}); err != nil {
			return err
		}
		return purge(bucketAuthStates, func(v []byte) bool {
			var pending auth.PendingAuth
			return json.Unmarshal(v, &pending) != nil || now.After(pending.ExpiresAt)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	return removed, nil
}

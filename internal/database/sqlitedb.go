package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/auth"
	_ "modernc.org/sqlite"
)

// SQLiteDB represents the SQLite implementation of the Database interface.
type SQLiteDB struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewSQLiteDB initializes a new SQLiteDB instance.
func NewSQLiteDB(path string, logger *logrus.Logger) (*SQLiteDB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite doesn't support multiple writers well.
	db.SetMaxOpenConns(1)

	sqliteDB := &SQLiteDB{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := sqliteDB.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sqliteDB, nil
}

func (s *SQLiteDB) Close(context.Context) error {
	return s.db.Close()
}

// Initialize creates the necessary tables and indexes.
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	schema := `
	-- Blacklisted Tokens
	CREATE TABLE IF NOT EXISTS blacklisted_tokens (
		token TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_blacklisted_tokens_expires_at ON blacklisted_tokens(expires_at);

	-- Refresh Tokens
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id);

	-- Provider Tokens
	CREATE TABLE IF NOT EXISTS provider_tokens (
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT,
		expires_at INTEGER,
		PRIMARY KEY (user_id, provider)
	);

	-- Pending authorizations
	CREATE TABLE IF NOT EXISTS auth_states (
		state TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		redirect_to TEXT NOT NULL,
		skip_in_app_redirect INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	-- Key/value items
	CREATE TABLE IF NOT EXISTS items (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// AddBlacklistedToken adds a token string to the blacklist with its expiration time.
func (s *SQLiteDB) AddBlacklistedToken(ctx context.Context, tokenString string, exp int64) error {
	query := `
		INSERT INTO blacklisted_tokens (token, expires_at)
		VALUES (?, ?)
		ON CONFLICT(token) DO UPDATE SET
			expires_at=excluded.expires_at;
	`
	if _, err := s.db.ExecContext(ctx, query, tokenString, exp); err != nil {
		s.logger.WithError(err).Error("AddBlacklistedToken: failed to add token")
		return err
	}
	return nil
}

// IsTokenBlacklisted checks if a token is in the blacklist.
// If the token is expired, it removes it from the blacklist.
func (s *SQLiteDB) IsTokenBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM blacklisted_tokens WHERE token = ?;`, tokenString).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		s.logger.WithError(err).Error("IsTokenBlacklisted: failed to query token")
		return false, err
	}

	if expiresAt < s.now().Unix() {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM blacklisted_tokens WHERE token = ?;`, tokenString); err != nil {
			s.logger.WithError(err).Error("IsTokenBlacklisted: failed to delete expired token")
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// StoreRefreshToken saves a refresh token with associated user and expiration.
func (s *SQLiteDB) StoreRefreshToken(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id=excluded.user_id,
			expires_at=excluded.expires_at;
	`
	if _, err := s.db.ExecContext(ctx, query, token, userID, expiresAt.Unix()); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("StoreRefreshToken: failed to store refresh token")
		return err
	}
	return nil
}

// ValidateRefreshToken checks if a refresh token is valid and not expired.
// Returns the associated userID if valid.
func (s *SQLiteDB) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	var userID string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id, expires_at FROM refresh_tokens WHERE token = ?;`, token).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: refresh token not found", auth.ErrInvalidToken)
		}
		s.logger.WithError(err).Error("ValidateRefreshToken: failed to query token")
		return "", err
	}

	if s.now().Unix() > expiresAt {
		if err := s.RevokeRefreshToken(ctx, token); err != nil {
			return "", fmt.Errorf("token expired and failed to revoke: %w", err)
		}
		return "", fmt.Errorf("%w: refresh token expired", auth.ErrInvalidToken)
	}

	return userID, nil
}

// RevokeRefreshToken removes a refresh token from the database.
func (s *SQLiteDB) RevokeRefreshToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?;`, token); err != nil {
		s.logger.WithError(err).Error("RevokeRefreshToken: failed to revoke token")
		return err
	}
	return nil
}

// StoreProviderTokens saves tokens obtained from a provider for a user.
func (s *SQLiteDB) StoreProviderTokens(ctx context.Context, userID string, provider string, tokens auth.ProviderTokens) error {
	query := `
		INSERT INTO provider_tokens (user_id, provider, access_token, refresh_token, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_at=excluded.expires_at;
	`
	var expiresAt sql.NullInt64
	if !tokens.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: tokens.ExpiresAt.Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query, userID, provider, tokens.AccessToken, tokens.RefreshToken, expiresAt)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  userID,
			"provider": provider,
		}).Error("StoreProviderTokens: failed to store tokens")
		return err
	}
	return nil
}

// GetProviderTokens retrieves tokens obtained from a provider for a user.
func (s *SQLiteDB) GetProviderTokens(ctx context.Context, userID string, provider string) (auth.ProviderTokens, error) {
	var tokens auth.ProviderTokens
	var refreshToken sql.NullString
	var expiresAt sql.NullInt64

	query := `
		SELECT access_token, refresh_token, expires_at
		FROM provider_tokens
		WHERE user_id = ? AND provider = ?;
	`
	err := s.db.QueryRowContext(ctx, query, userID, provider).Scan(&tokens.AccessToken, &refreshToken, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokens, fmt.Errorf("%w: provider tokens for user %s and provider %s", auth.ErrTokenNotFound, userID, provider)
		}
		s.logger.WithError(err).Error("GetProviderTokens: failed to query tokens")
		return tokens, err
	}

	tokens.RefreshToken = refreshToken.String
	if expiresAt.Valid {
		tokens.ExpiresAt = time.Unix(expiresAt.Int64, 0)
	}
	return tokens, nil
}

// StoreAuthState records a pending authorization.
func (s *SQLiteDB) StoreAuthState(ctx context.Context, state string, pending auth.PendingAuth) error {
	query := `
		INSERT INTO auth_states (state, provider, redirect_to, skip_in_app_redirect, expires_at)
		VALUES (?, ?, ?, ?, ?);
	`
	_, err := s.db.ExecContext(ctx, query, state, pending.Provider, pending.RedirectTo, pending.SkipInAppRedirect, pending.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to store auth state: %w", err)
	}
	return nil
}

// PeekAuthState reads a pending authorization and leaves it in place.
func (s *SQLiteDB) PeekAuthState(ctx context.Context, state string) (auth.PendingAuth, error) {
	var pending auth.PendingAuth
	var expiresAt int64
	query := `
		SELECT provider, redirect_to, skip_in_app_redirect, expires_at
		FROM auth_states
		WHERE state = ?;
	`
	err := s.db.QueryRowContext(ctx, query, state).Scan(&pending.Provider, &pending.RedirectTo, &pending.SkipInAppRedirect, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.PendingAuth{}, auth.ErrStateNotFound
		}
		return auth.PendingAuth{}, err
	}
	pending.ExpiresAt = time.Unix(expiresAt, 0)
	if s.now().After(pending.ExpiresAt) {
		return auth.PendingAuth{}, auth.ErrStateNotFound
	}
	return pending, nil
}

// ConsumeAuthState reads and deletes a pending authorization in one transaction.
func (s *SQLiteDB) ConsumeAuthState(ctx context.Context, state string) (auth.PendingAuth, error) {
	var pending auth.PendingAuth

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pending, err
	}
	defer tx.Rollback()

	var expiresAt int64
	query := `
		SELECT provider, redirect_to, skip_in_app_redirect, expires_at
		FROM auth_states
		WHERE state = ?;
	`
	err = tx.QueryRowContext(ctx, query, state).Scan(&pending.Provider, &pending.RedirectTo, &pending.SkipInAppRedirect, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.PendingAuth{}, auth.ErrStateNotFound
		}
		return auth.PendingAuth{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_states WHERE state = ?;`, state); err != nil {
		return auth.PendingAuth{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.PendingAuth{}, err
	}

	pending.ExpiresAt = time.Unix(expiresAt, 0)
	if s.now().After(pending.ExpiresAt) {
		return auth.PendingAuth{}, auth.ErrStateNotFound
	}
	return pending, nil
}

// GetItem returns the stored value or "" when key is absent.
func (s *SQLiteDB) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?;`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetItem upserts value under key.
func (s *SQLiteDB) SetItem(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO items (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value;
	`
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}

// RemoveItem deletes key.
func (s *SQLiteDB) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?;`, key)
	return err
}

// PurgeExpired deletes every expired blacklist entry, refresh token and
// pending authorization.
func (s *SQLiteDB) PurgeExpired(ctx context.Context) (int, error) {
	now := s.now().Unix()
	removed := 0
	for _, query := range []string{
		`DELETE FROM blacklisted_tokens WHERE expires_at < ?;`,
		`DELETE FROM refresh_tokens WHERE expires_at < ?;`,
		`DELETE FROM auth_states WHERE expires_at < ?;`,
	} {
		res, err := s.db.ExecContext(ctx, query, now)
		if err != nil {
			return removed, fmt.Errorf("failed to purge expired records: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

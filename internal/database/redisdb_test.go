package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y0ug/glanceauth/pkg/auth"
)

func newMockRedisDB() (*RedisDB, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	return newRedisDBWithClient(client, newTestLogger()), mock
}

func TestRedisItems(t *testing.T) {
	db, mock := newMockRedisDB()
	ctx := context.Background()

	mock.ExpectGet("item:onboarding").RedisNil()
	mock.ExpectSet("item:onboarding", "true", 0).SetVal("OK")
	mock.ExpectGet("item:onboarding").SetVal("true")
	mock.ExpectDel("item:onboarding").SetVal(1)

	val, err := db.GetItem(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, db.SetItem(ctx, "onboarding", "true"))

	val, err = db.GetItem(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "true", val)

	require.NoError(t, db.RemoveItem(ctx, "onboarding"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGetItemError(t *testing.T) {
	db, mock := newMockRedisDB()

	mock.ExpectGet("item:onboarding").SetErr(errors.New("connection refused"))

	_, err := db.GetItem(context.Background(), "onboarding")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisIsTokenBlacklisted(t *testing.T) {
	db, mock := newMockRedisDB()

	mock.ExpectExists("blacklist:at-1").SetVal(1)
	mock.ExpectExists("blacklist:at-2").SetVal(0)

	blacklisted, err := db.IsTokenBlacklisted(context.Background(), "at-1")
	require.NoError(t, err)
	assert.True(t, blacklisted)

	blacklisted, err = db.IsTokenBlacklisted(context.Background(), "at-2")
	require.NoError(t, err)
	assert.False(t, blacklisted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisAddExpiredBlacklistedTokenIsNoop(t *testing.T) {
	db, mock := newMockRedisDB()

	err := db.AddBlacklistedToken(context.Background(), "at-1", time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisValidateRefreshToken(t *testing.T) {
	db, mock := newMockRedisDB()
	ctx := context.Background()

	data, err := json.Marshal(refreshTokenRecord{UserID: "user1", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	mock.ExpectGet("refresh_token:rt-1").SetVal(string(data))
	mock.ExpectGet("refresh_token:rt-2").RedisNil()

	userID, err := db.ValidateRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "user1", userID)

	_, err = db.ValidateRefreshToken(ctx, "rt-2")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisConsumeAuthState(t *testing.T) {
	db, mock := newMockRedisDB()
	ctx := context.Background()

	data, err := json.Marshal(auth.PendingAuth{
		Provider:   "google",
		RedirectTo: "financeglance://auth/callback",
		ExpiresAt:  time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	mock.ExpectGetDel("auth_state:s1").SetVal(string(data))
	mock.ExpectGetDel("auth_state:s1").RedisNil()

	pending, err := db.ConsumeAuthState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "financeglance://auth/callback", pending.RedirectTo)

	_, err = db.ConsumeAuthState(ctx, "s1")
	assert.ErrorIs(t, err, auth.ErrStateNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPeekAuthStateKeepsKey(t *testing.T) {
	db, mock := newMockRedisDB()
	ctx := context.Background()

	data, err := json.Marshal(auth.PendingAuth{
		Provider:  "google",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	mock.ExpectGet("auth_state:s1").SetVal(string(data))
	mock.ExpectGet("auth_state:missing").RedisNil()

	pending, err := db.PeekAuthState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "google", pending.Provider)

	_, err = db.PeekAuthState(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrStateNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGetProviderTokensMissing(t *testing.T) {
	db, mock := newMockRedisDB()

	mock.ExpectGet("provider_tokens:google:user1").RedisNil()

	_, err := db.GetProviderTokens(context.Background(), "user1", "google")
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

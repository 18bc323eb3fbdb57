package database

import (
	"encoding/json"
	"fmt"
	"time"
)

// generateProviderKey creates a composite key using provider and userID.
func generateProviderKey(provider, userID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", provider, userID))
}

// refreshTokenRecord is the serialized form of a stored refresh token.
type refreshTokenRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func encodeRefreshToken(userID string, expiresAt time.Time) ([]byte, error) {
	data, err := json.Marshal(refreshTokenRecord{UserID: userID, ExpiresAt: expiresAt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh token data: %w", err)
	}
	return data, nil
}

func decodeRefreshToken(data []byte) (refreshTokenRecord, error) {
	var record refreshTokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("failed to unmarshal refresh token data: %w", err)
	}
	return record, nil
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "bearer"
	tokenTypeRefresh = "refresh"
)

// generateStateString generates a random state string for CSRF protection.
func generateStateString() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("unable to generate state string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// parseJWT parses and validates a JWT token string.
func parseJWT(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure token is signed with HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}

	return claims, nil
}

// generateTokens creates both access and refresh JWT tokens for identity.
// Both tokens carry the same session id.
func generateTokens(identity jwt.MapClaims, config *Config, now time.Time) (*TokenResponse, time.Time, error) {
	accessExpirationTime := now.Add(config.AccessTokenExpiration)
	accessClaims := jwt.MapClaims{}
	for k, v := range identity {
		accessClaims[k] = v
	}
	accessClaims["exp"] = accessExpirationTime.Unix()
	accessClaims["iat"] = now.Unix()
	accessClaims["jti"] = uuid.NewString()
	accessClaims["type"] = tokenTypeAccess

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString(config.JwtSecret)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshExpirationTime := now.Add(config.RefreshTokenExpiration)
	refreshClaims := jwt.MapClaims{}
	for k, v := range identity {
		refreshClaims[k] = v
	}
	refreshClaims["exp"] = refreshExpirationTime.Unix()
	refreshClaims["iat"] = now.Unix()
	refreshClaims["jti"] = uuid.NewString()
	refreshClaims["type"] = tokenTypeRefresh

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString(config.JwtSecret)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		TokenType:    tokenTypeAccess,
		ExpiresIn:    int64(config.AccessTokenExpiration.Seconds()),
	}, refreshExpirationTime, nil
}

// getTokenExpiration extracts the expiration time from a token without
// verifying it. Unreadable tokens report now.
func getTokenExpiration(tokenString string, now time.Time) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return now.Unix()
	}
	if exp, ok := claims["exp"].(float64); ok {
		return int64(exp)
	}
	return now.Unix()
}

func claimString(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// userInfoFromClaims extracts the user fields shared by every app token.
func userInfoFromClaims(claims jwt.MapClaims) UserInfo {
	return UserInfo{
		Sub:      claimString(claims, "sub"),
		Name:     claimString(claims, "name"),
		Email:    claimString(claims, "email"),
		Picture:  claimString(claims, "picture"),
		Provider: claimString(claims, "provider"),
	}
}

// tokenFragmentURL appends the issued tokens to redirectTo as a URL fragment,
// replacing any fragment already present.
func tokenFragmentURL(redirectTo string, tokens *TokenResponse) string {
	base, _, _ := strings.Cut(redirectTo, "#")
	values := url.Values{}
	values.Set("access_token", tokens.AccessToken)
	values.Set("refresh_token", tokens.RefreshToken)
	values.Set("expires_in", strconv.FormatInt(tokens.ExpiresIn, 10))
	values.Set("token_type", tokens.TokenType)
	return base + "#" + values.Encode()
}

// errorQueryURL appends an OAuth error to redirectTo's query string.
func errorQueryURL(redirectTo, code, description string) string {
	base, _, _ := strings.Cut(redirectTo, "#")
	values := url.Values{}
	values.Set("error", code)
	if description != "" {
		values.Set("error_description", description)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + values.Encode()
}

// WriteJSONResponse writes a JSON response with the specified HTTP status and data.
func WriteJSONResponse(w http.ResponseWriter, httpStatus int, data *HttpResp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteSuccessResponse sends a successful JSON response.
func WriteSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	WriteJSONResponse(w,
		http.StatusOK,
		&HttpResp{Status: "success", Data: data, Message: message})
}

// WriteErrorResponse sends an error JSON response.
func WriteErrorResponse(w http.ResponseWriter, message string, httpStatus int) {
	WriteJSONResponse(w,
		httpStatus,
		&HttpResp{Status: "error", Data: nil, Message: message})
}

// extractToken extracts a token from the request headers or cookies.
func extractToken(r *http.Request, tokenName string) string {
	// Check the Authorization header for a Bearer token
	if tokenName == "access_token" {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
				return parts[1]
			}
		}
	}

	cookie, err := r.Cookie(tokenName)
	if err == nil {
		return cookie.Value
	}

	return ""
}

// GetClientIP retrieves the client's IP address from the request.
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can have multiple IPs; the first one is usually the original client IP
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return clientIP
}

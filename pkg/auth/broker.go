package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/y0ug/glanceauth/pkg/auth/providers"
	"github.com/y0ug/glanceauth/pkg/authflow"
)

// Broker runs the provider side of the OAuth flow and issues application
// tokens. The HTTP handlers and the in-process Client both go through it.
type Broker struct {
	config *Config
	db     Database
	logger *logrus.Logger
	now    func() time.Time
}

// NewBroker creates a broker over the configured providers.
func NewBroker(config *Config, db Database, logger *logrus.Logger) *Broker {
	return &Broker{
		config: config,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the broker configuration.
func (b *Broker) Config() *Config {
	return b.config
}

func (b *Broker) provider(name string) (providers.Provider, error) {
	p, ok := b.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// BeginAuthorization validates the redirect URI, records a pending
// authorization and returns the URL the browser must open. With
// SkipInAppRedirect the provider consent URL is returned directly, otherwise
// the broker's own authorize endpoint.
func (b *Broker) BeginAuthorization(ctx context.Context, req authflow.AuthorizationRequest) (string, error) {
	provider, err := b.provider(string(req.Provider))
	if err != nil {
		return "", err
	}

	if !b.config.RedirectAllowed(req.RedirectURI) {
		b.logger.WithField("redirect_uri", req.RedirectURI).Warn("Redirect URI not in whitelist")
		return "", &authflow.ConfigurationError{
			RedirectURI: req.RedirectURI,
			Message:     "not in the redirect whitelist",
		}
	}

	state, err := generateStateString()
	if err != nil {
		return "", err
	}

	pending := PendingAuth{
		Provider:          provider.Name(),
		RedirectTo:        req.RedirectURI,
		SkipInAppRedirect: req.SkipInAppRedirect,
		ExpiresAt:         b.now().Add(b.config.AuthStateExpiration),
	}
	if err := b.db.StoreAuthState(ctx, state, pending); err != nil {
		return "", fmt.Errorf("failed to store authorization state: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"provider":     provider.Name(),
		"redirect_uri": req.RedirectURI,
	}).Debug("Authorization started")

	if req.SkipInAppRedirect {
		return provider.AuthCodeURL(state), nil
	}
	return fmt.Sprintf("%s/auth/authorize/%s?state=%s", b.config.PublicURL, url.PathEscape(provider.Name()), url.QueryEscape(state)), nil
}

// AuthorizeURL returns the provider consent URL for a pending state without
// consuming it. The state must exist, be unexpired and belong to the provider.
func (b *Broker) AuthorizeURL(ctx context.Context, providerName, state string) (string, error) {
	provider, err := b.provider(providerName)
	if err != nil {
		return "", err
	}
	if state == "" {
		return "", ErrStateNotFound
	}
	pending, err := b.db.PeekAuthState(ctx, state)
	if err != nil {
		return "", err
	}
	if pending.Provider != providerName || b.now().After(pending.ExpiresAt) {
		return "", ErrStateNotFound
	}
	return provider.AuthCodeURL(state), nil
}

// CallbackParams are the query parameters the provider sends back.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CompleteAuthorization consumes the pending state and returns the app
// redirect URL: tokens in the fragment on success, error in the query
// otherwise. An unknown state is returned as an error since there is no
// redirect target to report it to.
func (b *Broker) CompleteAuthorization(ctx context.Context, providerName string, params CallbackParams) (string, error) {
	pending, err := b.db.ConsumeAuthState(ctx, params.State)
	if err != nil {
		return "", err
	}
	if pending.Provider != providerName {
		return "", fmt.Errorf("%w: provider mismatch", ErrStateNotFound)
	}

	provider, err := b.provider(providerName)
	if err != nil {
		return "", err
	}

	logger := b.logger.WithField("provider", providerName)

	if params.Error != "" {
		logger.WithField("error", params.Error).Warn("Provider returned an error")
		return errorQueryURL(pending.RedirectTo, params.Error, params.ErrorDescription), nil
	}
	if params.Code == "" {
		return errorQueryURL(pending.RedirectTo, "invalid_request", "missing authorization code"), nil
	}

	token, err := provider.ExchangeCode(ctx, params.Code)
	if err != nil {
		logger.WithError(err).Error("Token exchange failed")
		return errorQueryURL(pending.RedirectTo, "server_error", "token exchange failed"), nil
	}

	if token.RefreshToken == "" {
		logger.Warn("No refresh token received from the provider")
	}

	userInfo, err := provider.DecodeIDToken(ctx, token)
	if err != nil {
		logger.WithError(err).Warn("Failed to decode ID token, falling back to user info endpoint")
		userInfo, err = provider.FetchUserInfo(ctx, token.AccessToken)
		if err != nil {
			logger.WithError(err).Error("Failed to retrieve user info")
			return errorQueryURL(pending.RedirectTo, "server_error", "failed to retrieve user info"), nil
		}
	}

	providerTokens := ProviderTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if err := b.db.StoreProviderTokens(ctx, userInfo.Sub, providerName, providerTokens); err != nil {
		logger.WithError(err).Error("Failed to store provider tokens")
		return errorQueryURL(pending.RedirectTo, "server_error", "failed to store tokens"), nil
	}

	tokens, err := b.IssueTokens(ctx, userInfo)
	if err != nil {
		logger.WithError(err).Error("Failed to issue tokens")
		return errorQueryURL(pending.RedirectTo, "server_error", "failed to issue tokens"), nil
	}

	logger.WithField("user_id", userInfo.Sub).Info("User authenticated")
	return tokenFragmentURL(pending.RedirectTo, tokens), nil
}

// IssueTokens mints a new access/refresh pair for user under a fresh session id.
func (b *Broker) IssueTokens(ctx context.Context, user *providers.ProviderUserInfo) (*TokenResponse, error) {
	identity := jwt.MapClaims{
		"sub":      user.Sub,
		"name":     user.Name,
		"email":    user.Email,
		"picture":  user.Picture,
		"provider": user.Provider,
		"sid":      uuid.NewString(),
	}
	return b.issue(ctx, identity)
}

func (b *Broker) issue(ctx context.Context, identity jwt.MapClaims) (*TokenResponse, error) {
	tokens, refreshExpiresAt, err := generateTokens(identity, b.config, b.now())
	if err != nil {
		return nil, err
	}
	if err := b.db.StoreRefreshToken(ctx, tokens.RefreshToken, claimString(identity, "sub"), refreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return tokens, nil
}

// VerifyAccessToken validates an application access token and returns its claims.
func (b *Broker) VerifyAccessToken(ctx context.Context, accessToken string) (jwt.MapClaims, error) {
	blacklisted, err := b.db.IsTokenBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if blacklisted {
		return nil, fmt.Errorf("%w: token has been revoked", ErrInvalidToken)
	}

	claims, err := parseJWT(accessToken, b.config.JwtSecret)
	if err != nil {
		return nil, err
	}
	if claimString(claims, "type") != tokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims, nil
}

// RotateRefreshToken exchanges a valid refresh token for a new token pair and
// revokes the old one. The provider access token is renewed when it has
// expired; a failed renewal ends the session.
func (b *Broker) RotateRefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	userID, err := b.db.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	claims, err := parseJWT(refreshToken, b.config.JwtSecret)
	if err != nil {
		return nil, err
	}
	if claimString(claims, "type") != tokenTypeRefresh || claimString(claims, "sub") != userID {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}

	providerName := claimString(claims, "provider")
	logger := b.logger.WithFields(logrus.Fields{"user_id": userID, "provider": providerName})

	providerTokens, err := b.db.GetProviderTokens(ctx, userID, providerName)
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to retrieve provider tokens: %w", err)
	}

	if err == nil && providerTokens.Expired(b.now()) {
		if providerTokens.RefreshToken == "" {
			logger.Warn("Provider access token expired without refresh token")
			b.revokeQuietly(ctx, refreshToken)
			return nil, fmt.Errorf("%w: provider session expired", ErrInvalidToken)
		}

		provider, err := b.provider(providerName)
		if err != nil {
			return nil, err
		}
		renewed, err := provider.RenewAccessToken(ctx, providerTokens.RefreshToken)
		if err != nil {
			logger.WithError(err).Warn("Provider token renewal failed")
			b.revokeQuietly(ctx, refreshToken)
			return nil, fmt.Errorf("%w: provider session expired", ErrInvalidToken)
		}

		providerTokens.AccessToken = renewed.AccessToken
		providerTokens.ExpiresAt = renewed.Expiry
		if renewed.RefreshToken != "" {
			providerTokens.RefreshToken = renewed.RefreshToken
		}
		if err := b.db.StoreProviderTokens(ctx, userID, providerName, providerTokens); err != nil {
			return nil, fmt.Errorf("failed to update provider tokens: %w", err)
		}
	}

	identity := jwt.MapClaims{}
	for _, key := range []string{"sub", "name", "email", "picture", "provider", "sid"} {
		identity[key] = claimString(claims, key)
	}

	tokens, err := b.issue(ctx, identity)
	if err != nil {
		return nil, err
	}
	b.revokeQuietly(ctx, refreshToken)

	logger.Debug("Refresh token rotated")
	return tokens, nil
}

// Revoke blacklists the access token until it expires and deletes the
// refresh token. Empty values are skipped.
func (b *Broker) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		if err := b.db.AddBlacklistedToken(ctx, accessToken, getTokenExpiration(accessToken, b.now())); err != nil {
			return fmt.Errorf("failed to blacklist access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := b.db.RevokeRefreshToken(ctx, refreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
	}
	return nil
}

func (b *Broker) revokeQuietly(ctx context.Context, refreshToken string) {
	if err := b.db.RevokeRefreshToken(ctx, refreshToken); err != nil {
		b.logger.WithError(err).Error("Failed to revoke refresh token")
	}
}

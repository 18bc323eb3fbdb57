package providers

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Google signs ID tokens with either issuer form.
var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleProvider implements the Provider interface for Google OAuth2.
type GoogleProvider struct {
	config   *ProviderConfig
	verifier *idTokenVerifier
}

// NewGoogleProvider creates a new instance of GoogleProvider.
func NewGoogleProvider(config *ProviderConfig) *GoogleProvider {
	return &GoogleProvider{
		config:   config,
		verifier: newIDTokenVerifier(config.WellKnownJwksURL, config.ClientID, googleIssuers...),
	}
}

// Name returns the name of the provider.
func (p *GoogleProvider) Name() string {
	return p.config.Name
}

// OAuth2Config returns the OAuth2 configuration.
func (p *GoogleProvider) OAuth2Config() *oauth2.Config {
	return p.config.OAuth2Config
}

// Config returns the provider configuration.
func (p *GoogleProvider) Config() *ProviderConfig {
	return p.config
}

// AuthCodeURL returns the Google consent URL. Offline access is requested so
// the broker receives a provider refresh token.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.OAuth2Config.AuthCodeURL(state, p.config.AuthCodeOptions()...)
}

// ExchangeCode exchanges the authorization code for an access token.
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.OAuth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// FetchUserInfo retrieves user information from Google using the access token.
func (p *GoogleProvider) FetchUserInfo(ctx context.Context, accessToken string) (*ProviderUserInfo, error) {
	var googleUser struct {
		Sub        string `json:"sub"`
		Name       string `json:"name"`
		Email      string `json:"email"`
		Picture    string `json:"picture"`
		ProfileURL string `json:"profile"`
	}

	if err := fetchUserInfo(ctx, p.config, accessToken, &googleUser); err != nil {
		return nil, err
	}
	if googleUser.Sub == "" {
		return nil, fmt.Errorf("invalid user info: missing 'sub'")
	}

	return &ProviderUserInfo{
		Sub:        googleUser.Sub,
		Name:       googleUser.Name,
		Email:      googleUser.Email,
		Provider:   p.Name(),
		ProfileURL: googleUser.ProfileURL,
		Picture:    googleUser.Picture,
	}, nil
}

// DecodeIDToken decodes and validates the ID token from Google.
func (p *GoogleProvider) DecodeIDToken(ctx context.Context, token *oauth2.Token) (*ProviderUserInfo, error) {
	idToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token")
	}

	userClaims, err := p.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	userID, ok := userClaims["sub"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("invalid user claims: missing 'sub'")
	}

	userEmail, ok := userClaims["email"].(string)
	if !ok || userEmail == "" {
		return nil, fmt.Errorf("invalid user claims: missing 'email'")
	}

	// name, profile and picture depend on the granted scopes
	userName, _ := userClaims["name"].(string)
	profileURL, _ := userClaims["profile"].(string)
	pictureURL, _ := userClaims["picture"].(string)

	return &ProviderUserInfo{
		Sub:        userID,
		Name:       userName,
		Email:      userEmail,
		Provider:   p.Name(),
		ProfileURL: profileURL,
		Picture:    pictureURL,
	}, nil
}

// RenewAccessToken refreshes the access token using the refresh token.
func (p *GoogleProvider) RenewAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return renewToken(ctx, p.config.OAuth2Config, refreshToken)
}

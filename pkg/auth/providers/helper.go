package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
	"golang.org/x/oauth2"
)

const (
	keySetMaxAge     = time.Hour
	keySetMinRefresh = time.Minute
)

// idTokenVerifier checks ID token signatures against the provider's JWKS and
// the aud/iss claims. The key set is cached; an unknown kid triggers at most
// one refetch per keySetMinRefresh to pick up key rotation.
type idTokenVerifier struct {
	jwksURL  string
	audience string
	issuers  []string
	now      func() time.Time

	mu      sync.Mutex
	set     jwk.Set
	fetched time.Time
}

func newIDTokenVerifier(jwksURL, audience string, issuers ...string) *idTokenVerifier {
	return &idTokenVerifier{
		jwksURL:  jwksURL,
		audience: audience,
		issuers:  issuers,
		now:      time.Now,
	}
}

func (v *idTokenVerifier) Verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("kid header not found")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse ID token: %w", err)
	}

	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("invalid ID token audience")
	}
	if len(v.issuers) > 0 && !v.issuerAllowed(claims) {
		return nil, fmt.Errorf("invalid ID token issuer: %v", claims["iss"])
	}
	return claims, nil
}

func (v *idTokenVerifier) issuerAllowed(claims jwt.MapClaims) bool {
	for _, iss := range v.issuers {
		if claims.VerifyIssuer(iss, true) {
			return true
		}
	}
	return false
}

func (v *idTokenVerifier) publicKey(ctx context.Context, kid string) (interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if v.set == nil || now.Sub(v.fetched) >= keySetMaxAge {
		if err := v.fetchLocked(ctx, now); err != nil {
			return nil, err
		}
	}

	key, ok := v.set.LookupKeyID(kid)
	if !ok && now.Sub(v.fetched) >= keySetMinRefresh {
		if err := v.fetchLocked(ctx, now); err != nil {
			return nil, err
		}
		key, ok = v.set.LookupKeyID(kid)
	}
	if !ok {
		return nil, fmt.Errorf("unable to find key %s", kid)
	}

	var publicKey interface{}
	if err := key.Raw(&publicKey); err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}
	return publicKey, nil
}

func (v *idTokenVerifier) fetchLocked(ctx context.Context, now time.Time) error {
	set, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKs: %w", err)
	}
	v.set = set
	v.fetched = now
	return nil
}

// fetchUserInfo GETs the provider's userinfo endpoint with accessToken and
// decodes the JSON body into out.
func fetchUserInfo(ctx context.Context, config *ProviderConfig, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.UserInfoURL, nil)
	if err != nil {
		return err
	}

	client := config.OAuth2Config.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to get user info: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider user info response: %w", err)
	}
	return nil
}

// renewToken trades a provider refresh token for a fresh access token.
func renewToken(ctx context.Context, config *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	token, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to renew provider access token: %w", err)
	}
	return token, nil
}

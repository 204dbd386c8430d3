package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	ErrEmptyToken = errors.New("empty access token")
	ErrNoExpiry   = errors.New("access token has no exp claim")
)

// Credential is the access/refresh token pair held by the Store.
// ExpiresAt is derived from the access token and never persisted.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"-"`
}

// New builds a Credential and decodes its expiry. A token whose expiry cannot
// be decoded gets a zero ExpiresAt and therefore reads as expired.
func New(accessToken, refreshToken string) Credential {
	exp, _ := ExpiryFromAccessToken(accessToken)
	return Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    exp,
	}
}

// ExpiryFromAccessToken reads the exp claim without verifying the signature.
// The client has no key material; the server stays the authority on validity.
func ExpiryFromAccessToken(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, ErrEmptyToken
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	claims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return time.Time{}, errors.New("error extracting claims")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// Expired reports whether the access token expired before now.
func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return c.ExpiresAt.Before(now)
}

// HasRefreshToken reports whether a refresh cycle can be attempted.
func (c Credential) HasRefreshToken() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// OAuth2Token adapts the credential for oauth2 helpers such as SetAuthHeader.
func (c Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}

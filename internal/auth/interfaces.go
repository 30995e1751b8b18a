package auth

import (
	"context"
	"net/http"
)

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeviceCodeRequester obtains a device code, user code and verification URL
type DeviceCodeRequester interface {
	RequestDeviceCode(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error)
}

// DeviceCodePoller performs a single poll of the token endpoint
type DeviceCodePoller interface {
	ExchangeCode(ctx context.Context, deviceCode string, creds Credentials) ExchangeOutcome
}

// TokenRefresher exchanges a refresh token for a new access token
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string, creds Credentials) (*TokenResult, error)
}

// Display shows the user code and verification URL while authorization is pending
type Display interface {
	Show(session *DeviceAuthorizationSession)
	Hide()
}

// SettingsStore persists the cached tokens between runs
type SettingsStore interface {
	// CachedAccessToken returns the last access token, or "" when none is stored
	CachedAccessToken() (string, error)
	// SetCachedAccessToken stores the access token
	SetCachedAccessToken(token string) error
	// CachedRefreshToken returns the stored refresh token, or "" when none is stored
	CachedRefreshToken() (string, error)
	// SetCachedRefreshToken stores the refresh token
	SetCachedRefreshToken(token string) error
	// Clear removes both tokens
	Clear() error
}

// AccessTokenProvider yields an access token, authorizing if needed
type AccessTokenProvider interface {
	ProvideAccessToken(ctx context.Context) (string, error)
}

// TokenProvider is an AccessTokenProvider that also exposes the full token set
type TokenProvider interface {
	AccessTokenProvider
	Authorize(ctx context.Context) (*TokenResult, error)
}

// Exchangers groups the three network operations the provider sequences
type Exchangers struct {
	Requester DeviceCodeRequester
	Poller    DeviceCodePoller
	Refresher TokenRefresher
}

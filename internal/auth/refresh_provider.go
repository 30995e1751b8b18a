package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// RefreshOnlyProvider renews the access token from the cached refresh token and
// never starts an interactive flow
type RefreshOnlyProvider struct {
	creds     Credentials
	store     SettingsStore
	refresher TokenRefresher
	logger    zerolog.Logger
}

// Ensure RefreshOnlyProvider implements TokenProvider
var _ TokenProvider = (*RefreshOnlyProvider)(nil)

// NewRefreshOnlyProvider creates a refresh-only provider. A nil refresher uses the HTTP one.
func NewRefreshOnlyProvider(creds Credentials, store SettingsStore, refresher TokenRefresher, logger zerolog.Logger) *RefreshOnlyProvider {
	if refresher == nil {
		refresher = NewAccessTokenRefresher(nil, logger)
	}
	return &RefreshOnlyProvider{
		creds:     creds.WithDefaults(),
		store:     store,
		refresher: refresher,
		logger:    logger,
	}
}

// Authorize refreshes the access token
func (p *RefreshOnlyProvider) Authorize(ctx context.Context) (*TokenResult, error) {
	if p.store == nil {
		return nil, ErrNoRefreshToken
	}

	refreshToken, err := p.store.CachedRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	token, err := p.refresher.RefreshAccessToken(ctx, refreshToken, p.creds)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := cacheTokens(p.store, token); err != nil {
		return nil, err
	}

	p.logger.Debug().Msg("access token refreshed")
	return token, nil
}

// ProvideAccessToken returns a refreshed access token
func (p *RefreshOnlyProvider) ProvideAccessToken(ctx context.Context) (string, error) {
	token, err := p.Authorize(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Variant selects an AccessTokenProvider implementation
type Variant string

const (
	// VariantDeviceFlow refreshes when possible and falls back to the device flow
	VariantDeviceFlow Variant = "device"
	// VariantRefreshOnly only refreshes the cached token
	VariantRefreshOnly Variant = "refresh-only"
)

// NewAccessTokenProvider builds the provider variant named by configuration
func NewAccessTokenProvider(variant Variant, creds Credentials, store SettingsStore, display Display, exchangers Exchangers, config *LoginConfig, opts ...ProviderOption) (TokenProvider, error) {
	switch variant {
	case VariantDeviceFlow, "":
		return NewDeviceFlowProviderWithExchangers(creds, store, display, exchangers, config, opts...), nil
	case VariantRefreshOnly:
		o := applyOptions(opts)
		refresher := exchangers.Refresher
		if refresher == nil {
			refresher = NewAccessTokenRefresher(o.httpClient, o.logger)
		}
		return NewRefreshOnlyProvider(creds, store, refresher, o.logger), nil
	default:
		return nil, fmt.Errorf("unknown provider variant: %q", variant)
	}
}

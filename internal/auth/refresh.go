package auth

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
)

// AccessTokenRefresher exchanges a stored refresh token for a new access token
type AccessTokenRefresher struct {
	poster formPoster
	logger zerolog.Logger
}

// Ensure AccessTokenRefresher implements TokenRefresher
var _ TokenRefresher = (*AccessTokenRefresher)(nil)

// NewAccessTokenRefresher creates a refresher. A nil client uses a 30s-timeout http.Client.
func NewAccessTokenRefresher(httpClient HTTPClient, logger zerolog.Logger) *AccessTokenRefresher {
	return &AccessTokenRefresher{
		poster: newFormPoster(httpClient, logger),
		logger: logger,
	}
}

// RefreshAccessToken makes a single refresh request. There is no pending state.
func (r *AccessTokenRefresher) RefreshAccessToken(ctx context.Context, refreshToken string, creds Credentials) (*TokenResult, error) {
	const op = "token refresh"

	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{
		"client_id":     {creds.ClientID},
		"refresh_token": {refreshToken},
		"grant_type":    {refreshGrantType},
	}
	if creds.ClientSecret != "" {
		form.Set("client_secret", creds.ClientSecret)
	}

	resp := r.poster.post(ctx, creds.TokenURI, form)
	if exErr := resp.failure(op); exErr != nil {
		r.logger.Warn().Err(exErr).Str("kind", exErr.Kind.String()).Msg("token refresh failed")
		return nil, exErr
	}

	token, err := resp.decodeToken(op)
	if err != nil {
		r.logger.Warn().Err(err).Msg("token refresh failed")
		return nil, err
	}
	return token, nil
}

// NewExchangers wires the three HTTP exchangers over one client
func NewExchangers(httpClient HTTPClient, logger zerolog.Logger) Exchangers {
	return Exchangers{
		Requester: NewLimitedDeviceExchanger(httpClient, logger),
		Poller:    NewDeviceCodeExchanger(httpClient, logger),
		Refresher: NewAccessTokenRefresher(httpClient, logger),
	}
}

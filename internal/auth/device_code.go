package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// DeviceCodeExchanger polls the token endpoint with a device code
type DeviceCodeExchanger struct {
	poster formPoster
	logger zerolog.Logger
}

// Ensure DeviceCodeExchanger implements DeviceCodePoller
var _ DeviceCodePoller = (*DeviceCodeExchanger)(nil)

// NewDeviceCodeExchanger creates a token poller. A nil client uses a 30s-timeout http.Client.
func NewDeviceCodeExchanger(httpClient HTTPClient, logger zerolog.Logger) *DeviceCodeExchanger {
	return &DeviceCodeExchanger{
		poster: newFormPoster(httpClient, logger),
		logger: logger,
	}
}

// ExchangeCode makes a single token request. The caller owns the poll loop.
func (e *DeviceCodeExchanger) ExchangeCode(ctx context.Context, deviceCode string, creds Credentials) ExchangeOutcome {
	const op = "device code exchange"

	form := url.Values{
		"client_id":   {creds.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceCodeGrantType},
	}
	if creds.ClientSecret != "" {
		form.Set("client_secret", creds.ClientSecret)
	}

	resp := e.poster.post(ctx, creds.TokenURI, form)

	// Google answers 428 while the user has not finished; the body is irrelevant then.
	// Only the response status counts: client error text carries the request URL.
	if resp.Status == http.StatusPreconditionRequired {
		e.logger.Debug().Msg("authorization pending")
		return Pending(false)
	}

	if apiErr := resp.apiError(); apiErr != nil {
		if apiErr.IsAuthorizationPending() {
			e.logger.Debug().Msg("authorization pending")
			return Pending(false)
		}
		if apiErr.IsSlowDown() {
			e.logger.Debug().Msg("authorization pending, slow down requested")
			return Pending(true)
		}
	}

	if exErr := resp.failure(op); exErr != nil {
		e.logger.Error().Err(exErr).Str("kind", exErr.Kind.String()).Msg("device code exchange failed")
		return Failure(exErr)
	}

	token, err := resp.decodeToken(op)
	if err != nil {
		e.logger.Error().Err(err).Msg("device code exchange failed")
		return Failure(err)
	}
	return Success(token)
}

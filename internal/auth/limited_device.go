package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
)

// LimitedDeviceExchanger requests a device code and user code from the device authorization endpoint.
// Protocol: https://developers.google.com/identity/protocols/oauth2/limited-input-device
type LimitedDeviceExchanger struct {
	poster formPoster
	logger zerolog.Logger
}

// Ensure LimitedDeviceExchanger implements DeviceCodeRequester
var _ DeviceCodeRequester = (*LimitedDeviceExchanger)(nil)

// NewLimitedDeviceExchanger creates a device code requester. A nil client uses a 30s-timeout http.Client.
func NewLimitedDeviceExchanger(httpClient HTTPClient, logger zerolog.Logger) *LimitedDeviceExchanger {
	return &LimitedDeviceExchanger{
		poster: newFormPoster(httpClient, logger),
		logger: logger,
	}
}

type deviceCodeResponse struct {
	Error            string  `json:"error"`
	ErrorDescription string  `json:"error_description"`
	DeviceCode       string  `json:"device_code"`
	UserCode         string  `json:"user_code"`
	ExpiresIn        flexInt `json:"expires_in"`
	Interval         flexInt `json:"interval"`
	VerificationURL  string  `json:"verification_url"`
	VerificationURI  string  `json:"verification_uri"`
}

// RequestDeviceCode sends a single device code request. It does not retry.
func (e *LimitedDeviceExchanger) RequestDeviceCode(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error) {
	const op = "device code request"

	form := url.Values{
		"client_id": {creds.ClientID},
		"scope":     {scope},
	}

	resp := e.poster.post(ctx, creds.DeviceCodeURI, form)
	if exErr := resp.failure(op); exErr != nil {
		e.logger.Error().Err(exErr).Str("kind", exErr.Kind.String()).Msg("device code request failed")
		return nil, exErr
	}

	var payload deviceCodeResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		exErr := &ExchangeError{Op: op, Kind: ProtocolViolation, Err: fmt.Errorf("failed to parse response: %w", err)}
		e.logger.Error().Err(exErr).Msg("device code request failed")
		return nil, exErr
	}
	if payload.DeviceCode == "" {
		exErr := &ExchangeError{Op: op, Kind: ProtocolViolation, Err: fmt.Errorf("response did not include a device code")}
		e.logger.Error().Err(exErr).Msg("device code request failed")
		return nil, exErr
	}

	verificationURL := payload.VerificationURL
	if verificationURL == "" {
		verificationURL = payload.VerificationURI
	}

	return &DeviceAuthorizationSession{
		DeviceCode:      payload.DeviceCode,
		UserCode:        payload.UserCode,
		VerificationURL: verificationURL,
		ExpiresIn:       int(payload.ExpiresIn),
		Interval:        int(payload.Interval),
	}, nil
}

// DeviceCodeResult is delivered by RequestDeviceCodeAsync
type DeviceCodeResult struct {
	Session *DeviceAuthorizationSession
	Err     error
}

// RequestDeviceCodeAsync issues the request in the background. The channel receives exactly one result.
func (e *LimitedDeviceExchanger) RequestDeviceCodeAsync(ctx context.Context, creds Credentials, scope string) <-chan DeviceCodeResult {
	done := make(chan DeviceCodeResult, 1)
	go func() {
		defer close(done)
		session, err := e.RequestDeviceCode(ctx, creds, scope)
		done <- DeviceCodeResult{Session: session, Err: err}
	}()
	return done
}

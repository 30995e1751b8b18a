package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// exchangeResponse is what a single form POST yields
type exchangeResponse struct {
	Status int
	Body   []byte
	// TransportErr is the client error text, or the status line of a non-2xx response
	TransportErr string
}

// formPoster issues form-encoded POSTs to the authorization server
type formPoster struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

func newFormPoster(httpClient HTTPClient, logger zerolog.Logger) formPoster {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return formPoster{httpClient: httpClient, logger: logger}
}

// post sends the form and never returns a Go error: every failure ends up in TransportErr
func (p formPoster) post(ctx context.Context, endpoint string, form url.Values) *exchangeResponse {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &exchangeResponse{TransportErr: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", acceptHeader)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &exchangeResponse{TransportErr: err.Error()}
	}
	if resp == nil {
		return &exchangeResponse{TransportErr: "no response"}
	}
	defer resp.Body.Close()

	out := &exchangeResponse{Status: resp.StatusCode}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.TransportErr = fmt.Sprintf("failed to read response: %v", err)
		return out
	}
	out.Body = body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.TransportErr = resp.Status
		if out.TransportErr == "" {
			out.TransportErr = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
	}

	p.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("exchange request completed")

	return out
}

// apiError extracts a non-empty error field from a JSON body. Unparsable bodies yield nil.
func (r *exchangeResponse) apiError() *TokenError {
	if len(r.Body) == 0 {
		return nil
	}
	var tokenErr TokenError
	if err := json.Unmarshal(r.Body, &tokenErr); err != nil {
		return nil
	}
	if tokenErr.ErrorCode == "" {
		return nil
	}
	return &tokenErr
}

// failure builds the ExchangeError for a response, or nil when the exchange succeeded
func (r *exchangeResponse) failure(op string) *ExchangeError {
	apiErr := r.apiError()
	if r.TransportErr == "" && apiErr == nil {
		return nil
	}
	kind := TransportError
	if apiErr != nil {
		kind = APIError
	}
	return &ExchangeError{Op: op, Kind: kind, Transport: r.TransportErr, API: apiErr}
}

// tokenResponse is the token endpoint payload
type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    flexInt `json:"expires_in"`
	Scope        string  `json:"scope"`
	IDToken      string  `json:"id_token"`
}

func (r *exchangeResponse) decodeToken(op string) (*TokenResult, error) {
	var payload tokenResponse
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return nil, &ExchangeError{Op: op, Kind: ProtocolViolation, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if payload.AccessToken == "" {
		return nil, &ExchangeError{Op: op, Kind: ProtocolViolation, Err: fmt.Errorf("response did not include an access token")}
	}
	return &TokenResult{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		ExpiresIn:    int(payload.ExpiresIn),
		Scope:        payload.Scope,
		IDToken:      payload.IDToken,
	}, nil
}

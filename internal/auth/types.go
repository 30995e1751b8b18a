package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credentials identifies the OAuth client registered with the authorization server
type Credentials struct {
	// OAuth client ID
	ClientID string `json:"client_id" yaml:"client_id" toml:"client_id"`
	// OAuth client secret, optional for public clients
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty" toml:"client_secret,omitempty"`
	// Token endpoint used for device code and refresh exchanges
	TokenURI string `json:"token_uri" yaml:"token_uri" toml:"token_uri"`
	// Authorization endpoint, informational for the device flow
	AuthURI string `json:"auth_uri,omitempty" yaml:"auth_uri,omitempty" toml:"auth_uri,omitempty"`
	// Device authorization endpoint
	DeviceCodeURI string `json:"device_code_uri,omitempty" yaml:"device_code_uri,omitempty" toml:"device_code_uri,omitempty"`
}

// WithDefaults returns a copy with empty endpoints replaced by the Google defaults
func (c Credentials) WithDefaults() Credentials {
	if c.TokenURI == "" {
		c.TokenURI = DefaultTokenURI
	}
	if c.AuthURI == "" {
		c.AuthURI = DefaultAuthURI
	}
	if c.DeviceCodeURI == "" {
		c.DeviceCodeURI = DefaultDeviceCodeURI
	}
	return c
}

// Validate checks that the credentials can be used for an exchange
func (c Credentials) Validate() error {
	if c.ClientID == "" {
		return errors.New("client_id is required")
	}
	if c.TokenURI == "" {
		return errors.New("token_uri is required")
	}
	if c.DeviceCodeURI == "" {
		return errors.New("device_code_uri is required")
	}
	return nil
}

// DeviceAuthorizationSession is the result of a device code request
type DeviceAuthorizationSession struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	// Lifetime of the device code in seconds
	ExpiresIn int `json:"expires_in"`
	// Minimum wait between polls in seconds
	Interval int `json:"interval"`
}

// PollInterval returns the interval as a duration, falling back to the default
func (s *DeviceAuthorizationSession) PollInterval() time.Duration {
	if s.Interval <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(s.Interval) * time.Second
}

// Deadline returns the instant the device code stops being valid.
// A zero time means the server did not advertise a lifetime.
func (s *DeviceAuthorizationSession) Deadline(issuedAt time.Time) time.Time {
	if s.ExpiresIn <= 0 {
		return time.Time{}
	}
	return issuedAt.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// TokenResult is the token set produced by a successful exchange
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// OutcomeState is the tri-state result of a single exchange attempt
type OutcomeState int

const (
	OutcomePending OutcomeState = iota
	OutcomeSuccess
	OutcomeError
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ExchangeOutcome holds exactly one of pending, a token or an error
type ExchangeOutcome struct {
	State OutcomeState
	Token *TokenResult
	Err   error
	// SlowDown is set on a pending outcome when the server asked for a longer interval
	SlowDown bool
}

// Pending returns a pending outcome
func Pending(slowDown bool) ExchangeOutcome {
	return ExchangeOutcome{State: OutcomePending, SlowDown: slowDown}
}

// Success returns a successful outcome. A token without an access token is a protocol violation.
func Success(token *TokenResult) ExchangeOutcome {
	if token == nil || token.AccessToken == "" {
		return Failure(&ExchangeError{
			Op:   "exchange",
			Kind: ProtocolViolation,
			Err:  errors.New("response did not include an access token"),
		})
	}
	return ExchangeOutcome{State: OutcomeSuccess, Token: token}
}

// Failure returns an error outcome
func Failure(err error) ExchangeOutcome {
	if err == nil {
		err = &ExchangeError{Op: "exchange", Kind: ProtocolViolation, Err: errors.New("unknown failure")}
	}
	return ExchangeOutcome{State: OutcomeError, Err: err}
}

// TokenError represents an error response from the authorization server
type TokenError struct {
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Error implements the error interface for TokenError
func (e *TokenError) Error() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorDescription)
	}
	return e.ErrorCode
}

// IsAuthorizationPending checks if the error indicates pending authorization
func (e *TokenError) IsAuthorizationPending() bool {
	return e.ErrorCode == "authorization_pending"
}

// IsSlowDown checks if we should slow down polling
func (e *TokenError) IsSlowDown() bool {
	return e.ErrorCode == "slow_down"
}

// IsExpired checks if the device code has expired
func (e *TokenError) IsExpired() bool {
	return e.ErrorCode == "expired_token"
}

// IsAccessDenied checks if the user refused the request
func (e *TokenError) IsAccessDenied() bool {
	return e.ErrorCode == "access_denied"
}

// ErrorKind classifies an ExchangeError
type ErrorKind int

const (
	// TransportError is a connectivity failure or non-2xx status without an API error
	TransportError ErrorKind = iota
	// APIError is an error reported by the authorization server in the response body
	APIError
	// ProtocolViolation is a malformed or incomplete response
	ProtocolViolation
)

func (k ErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport"
	case APIError:
		return "api"
	case ProtocolViolation:
		return "protocol"
	default:
		return "unknown"
	}
}

// ExchangeError describes a failed exchange. Transport and API details are
// both kept when the server answered with an error status and an error body.
type ExchangeError struct {
	Op        string
	Kind      ErrorKind
	Transport string
	API       *TokenError
	Err       error
}

func (e *ExchangeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed:")
	if e.Transport != "" {
		b.WriteString(" HTTP error: ")
		b.WriteString(e.Transport)
	}
	if e.API != nil {
		if e.Transport != "" {
			b.WriteString(";")
		}
		b.WriteString(" API error: ")
		b.WriteString(e.API.ErrorCode)
		if e.API.ErrorDescription != "" {
			b.WriteString(" (")
			b.WriteString(e.API.ErrorDescription)
			b.WriteString(")")
		}
	}
	if e.Err != nil {
		if e.Transport != "" || e.API != nil {
			b.WriteString(";")
		}
		b.WriteString(" ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExchangeError) Unwrap() error {
	if e.API != nil {
		return e.API
	}
	return e.Err
}

var (
	// ErrNoRefreshToken is returned when a refresh is requested without a cached refresh token
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrDeviceCodeExpired is returned when polling outlives the device code
	ErrDeviceCodeExpired = errors.New("device code expired, please try again")
	// ErrAuthorizationPending marks a poll that should be retried
	ErrAuthorizationPending = errors.New("authorization pending")
)

// flexInt decodes a JSON number or a numeric string
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		var fl float64
		if jerr := json.Unmarshal([]byte(s), &fl); jerr != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		n = int(fl)
	}
	*f = flexInt(n)
	return nil
}

// LoginConfig contains configuration for the authorization process
type LoginConfig struct {
	// OAuth scope requested during the device flow
	Scope string
	// Upper bound on the time spent polling, regardless of the device code lifetime
	LoginTimeout time.Duration
	// Skip the cached refresh token and always run the device flow
	Force bool
}

// Constants for OAuth configuration
const (
	// Default Google device authorization endpoint
	DefaultDeviceCodeURI = "https://oauth2.googleapis.com/device/code"
	// Default Google token endpoint
	DefaultTokenURI = "https://oauth2.googleapis.com/token"
	// Default Google authorization endpoint
	DefaultAuthURI = "https://accounts.google.com/o/oauth2/auth"
	// Default scope: identity plus per-file Drive access
	DefaultScope = "openid email https://www.googleapis.com/auth/drive.file"
	// Poll interval used when the server does not advertise one
	DefaultPollInterval = 5 * time.Second
	// Extra wait added after a slow_down response
	SlowDownIncrement = 5 * time.Second
	// Maximum time to wait for login completion
	LoginTimeout = 30 * time.Minute

	deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	refreshGrantType    = "refresh_token"
	acceptHeader        = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	formContentType     = "application/x-www-form-urlencoded"
)

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// State is the position of a DeviceFlowProvider in its authorization cascade
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateExchangingDeviceCode
	StatePollingAuthorization
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateExchangingDeviceCode:
		return "exchanging_device_code"
	case StatePollingAuthorization:
		return "polling_authorization"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Completion is signalled once per authorization attempt
type Completion struct {
	Success     bool
	AccessToken string
	Token       *TokenResult
	Err         error
}

// providerOptions collects the settings applied by ProviderOption values
type providerOptions struct {
	clock      Clock
	logger     zerolog.Logger
	httpClient HTTPClient
	onComplete func(Completion)
}

func applyOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{
		clock:  SystemClock(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ProviderOption customizes a provider
type ProviderOption func(*providerOptions)

// WithClock replaces the wall clock used by the poll loop
func WithClock(clock Clock) ProviderOption {
	return func(o *providerOptions) { o.clock = clock }
}

// WithLogger sets the logger for the provider and the default exchangers
func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(o *providerOptions) { o.logger = logger }
}

// WithHTTPClient sets the client used by the default exchangers
func WithHTTPClient(client HTTPClient) ProviderOption {
	return func(o *providerOptions) { o.httpClient = client }
}

// WithCompletionHandler registers a callback invoked exactly once per attempt
func WithCompletionHandler(fn func(Completion)) ProviderOption {
	return func(o *providerOptions) { o.onComplete = fn }
}

// DeviceFlowProvider reuses a cached refresh token when it can and falls back
// to the device authorization flow otherwise
type DeviceFlowProvider struct {
	creds      Credentials
	store      SettingsStore
	display    Display
	exchangers Exchangers
	config     *LoginConfig
	clock      Clock
	logger     zerolog.Logger
	httpClient HTTPClient
	onComplete func(Completion)

	group singleflight.Group

	mu    sync.RWMutex
	state State
}

// Ensure DeviceFlowProvider implements TokenProvider
var _ TokenProvider = (*DeviceFlowProvider)(nil)

// NewDeviceFlowProvider creates a provider backed by the HTTP exchangers
func NewDeviceFlowProvider(creds Credentials, store SettingsStore, display Display, config *LoginConfig, opts ...ProviderOption) *DeviceFlowProvider {
	p := newDeviceFlowProvider(creds, store, display, config, opts)
	p.exchangers = NewExchangers(p.httpClient, p.logger)
	return p
}

// NewDeviceFlowProviderWithExchangers creates a provider with custom exchangers.
// This is primarily for testing but can be used for custom transports.
func NewDeviceFlowProviderWithExchangers(creds Credentials, store SettingsStore, display Display, exchangers Exchangers, config *LoginConfig, opts ...ProviderOption) *DeviceFlowProvider {
	p := newDeviceFlowProvider(creds, store, display, config, opts)
	defaults := NewExchangers(p.httpClient, p.logger)
	if exchangers.Requester == nil {
		exchangers.Requester = defaults.Requester
	}
	if exchangers.Poller == nil {
		exchangers.Poller = defaults.Poller
	}
	if exchangers.Refresher == nil {
		exchangers.Refresher = defaults.Refresher
	}
	p.exchangers = exchangers
	return p
}

func newDeviceFlowProvider(creds Credentials, store SettingsStore, display Display, config *LoginConfig, opts []ProviderOption) *DeviceFlowProvider {
	if config == nil {
		config = &LoginConfig{}
	}
	if display == nil {
		display = nopDisplay{}
	}

	o := applyOptions(opts)
	return &DeviceFlowProvider{
		creds:      creds.WithDefaults(),
		store:      store,
		display:    display,
		config:     config,
		clock:      o.clock,
		logger:     o.logger,
		httpClient: o.httpClient,
		onComplete: o.onComplete,
	}
}

// State returns the current position in the cascade
func (p *DeviceFlowProvider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *DeviceFlowProvider) setState(s State) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()

	p.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("authorization state changed")
}

// ProvideAccessToken returns a fresh access token, authorizing if needed
func (p *DeviceFlowProvider) ProvideAccessToken(ctx context.Context) (string, error) {
	token, err := p.Authorize(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// ProvideAccessTokenAsync runs the authorization in the background.
// The channel receives exactly one Completion and is then closed.
func (p *DeviceFlowProvider) ProvideAccessTokenAsync(ctx context.Context) <-chan Completion {
	done := make(chan Completion, 1)
	go func() {
		defer close(done)
		token, err := p.Authorize(ctx)
		done <- newCompletion(token, err)
	}()
	return done
}

// Authorize runs the refresh-then-device-flow cascade. Concurrent callers
// share the attempt already in flight.
func (p *DeviceFlowProvider) Authorize(ctx context.Context) (*TokenResult, error) {
	v, err, _ := p.group.Do("authorize", func() (interface{}, error) {
		token, err := p.authorize(ctx)
		if p.onComplete != nil {
			p.onComplete(newCompletion(token, err))
		}
		return token, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenResult), nil
}

func (p *DeviceFlowProvider) authorize(ctx context.Context) (*TokenResult, error) {
	logger := p.logger.With().Str("attempt", uuid.NewString()).Logger()
	p.setState(StateIdle)

	if err := p.creds.Validate(); err != nil {
		p.setState(StateDone)
		return nil, fmt.Errorf("invalid client credentials: %w", err)
	}

	if !p.config.Force {
		token, err := p.tryRefresh(ctx, logger)
		if err != nil || token != nil {
			p.setState(StateDone)
			return token, err
		}
		if err := ctx.Err(); err != nil {
			p.setState(StateDone)
			return nil, err
		}
	}

	p.setState(StateExchangingDeviceCode)
	session, err := p.exchangers.Requester.RequestDeviceCode(ctx, p.creds, p.scope())
	if err != nil {
		p.setState(StateDone)
		return nil, fmt.Errorf("failed to start device authorization: %w", err)
	}

	logger.Info().
		Str("user_code", session.UserCode).
		Str("verification_url", session.VerificationURL).
		Int("expires_in", session.ExpiresIn).
		Int("interval", session.Interval).
		Msg("device authorization started")

	p.display.Show(session)
	p.setState(StatePollingAuthorization)
	token, err := p.poll(ctx, session, logger)
	p.display.Hide()

	if err != nil {
		p.setState(StateDone)
		return nil, fmt.Errorf("failed to complete authorization: %w", err)
	}

	if err := cacheTokens(p.store, token); err != nil {
		p.setState(StateDone)
		return nil, err
	}

	logger.Info().Msg("device authorization completed")
	p.setState(StateDone)
	return token, nil
}

// tryRefresh makes at most one refresh attempt. A nil token and nil error
// means the caller should fall back to the device flow.
func (p *DeviceFlowProvider) tryRefresh(ctx context.Context, logger zerolog.Logger) (*TokenResult, error) {
	if p.store == nil {
		return nil, nil
	}

	refreshToken, err := p.store.CachedRefreshToken()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read cached refresh token")
		return nil, nil
	}
	if refreshToken == "" {
		return nil, nil
	}

	p.setState(StateRefreshing)
	token, err := p.exchangers.Refresher.RefreshAccessToken(ctx, refreshToken, p.creds)
	if err != nil {
		logger.Warn().Err(err).Msg("refresh failed, falling back to device authorization")
		return nil, nil
	}

	if err := cacheTokens(p.store, token); err != nil {
		return nil, err
	}

	logger.Info().Msg("access token refreshed")
	return token, nil
}

// poll waits one interval before every exchange until the outcome is terminal,
// the device code expires or ctx is cancelled
func (p *DeviceFlowProvider) poll(ctx context.Context, session *DeviceAuthorizationSession, logger zerolog.Logger) (*TokenResult, error) {
	interval := session.PollInterval()
	deadline := p.deadline(session)
	b := newPollBackOff(interval)

	var (
		token *TokenResult
		polls int
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if !deadline.IsZero() && !p.clock.Now().Before(deadline) {
			return backoff.Permanent(ErrDeviceCodeExpired)
		}

		polls++
		outcome := p.exchangers.Poller.ExchangeCode(ctx, session.DeviceCode, p.creds)
		switch outcome.State {
		case OutcomeSuccess:
			token = outcome.Token
			return nil
		case OutcomePending:
			if outcome.SlowDown {
				b.slowDown()
			}
			return ErrAuthorizationPending
		default:
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(outcome.Err)
		}
	}

	notify := func(_ error, next time.Duration) {
		logger.Debug().Int("polls", polls).Dur("next_poll", next).Msg("authorization pending")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.clock.After(interval):
	}

	if err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(b, ctx), notify, p.clock.NewTimer()); err != nil {
		if errors.Is(err, ErrDeviceCodeExpired) {
			logger.Warn().Int("polls", polls).Msg("device code expired before authorization completed")
		}
		return nil, err
	}
	return token, nil
}

// deadline is the earlier of the device code expiry and the login timeout
func (p *DeviceFlowProvider) deadline(session *DeviceAuthorizationSession) time.Time {
	now := p.clock.Now()
	deadline := session.Deadline(now)
	if p.config.LoginTimeout > 0 {
		limit := now.Add(p.config.LoginTimeout)
		if deadline.IsZero() || limit.Before(deadline) {
			deadline = limit
		}
	}
	return deadline
}

func (p *DeviceFlowProvider) scope() string {
	if p.config.Scope == "" {
		return DefaultScope
	}
	return p.config.Scope
}

// cacheTokens stores the refresh token, when present, and then the access token.
// A failed access token write leaves at most a newer refresh token behind,
// which the next refresh can still use.
func cacheTokens(store SettingsStore, token *TokenResult) error {
	if store == nil {
		return nil
	}
	if token.RefreshToken != "" {
		if err := store.SetCachedRefreshToken(token.RefreshToken); err != nil {
			return fmt.Errorf("failed to cache refresh token: %w", err)
		}
	}
	if err := store.SetCachedAccessToken(token.AccessToken); err != nil {
		return fmt.Errorf("failed to cache access token: %w", err)
	}
	return nil
}

func newCompletion(token *TokenResult, err error) Completion {
	if err != nil {
		return Completion{Err: err}
	}
	return Completion{Success: true, AccessToken: token.AccessToken, Token: token}
}

type nopDisplay struct{}

func (nopDisplay) Show(*DeviceAuthorizationSession) {}
func (nopDisplay) Hide()                            {}

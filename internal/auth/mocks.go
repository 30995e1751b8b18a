package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MockOAuthClient is a mock implementation of the three exchangers for testing
type MockOAuthClient struct {
	mu sync.Mutex

	// Clock, when set, timestamps recorded polls
	Clock Clock

	// RequestDeviceCode behavior
	RequestDeviceCodeFunc  func(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error)
	RequestDeviceCodeCalls []struct {
		Creds Credentials
		Scope string
	}

	// ExchangeCode behavior
	ExchangeCodeFunc  func(ctx context.Context, deviceCode string, creds Credentials) ExchangeOutcome
	ExchangeCodeCalls []struct {
		DeviceCode string
		At         time.Time
	}

	// RefreshAccessToken behavior
	RefreshFunc  func(ctx context.Context, refreshToken string, creds Credentials) (*TokenResult, error)
	RefreshCalls []struct {
		RefreshToken string
	}
}

// Ensure MockOAuthClient implements the exchanger interfaces
var (
	_ DeviceCodeRequester = (*MockOAuthClient)(nil)
	_ DeviceCodePoller    = (*MockOAuthClient)(nil)
	_ TokenRefresher      = (*MockOAuthClient)(nil)
)

// RequestDeviceCode implements DeviceCodeRequester
func (m *MockOAuthClient) RequestDeviceCode(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RequestDeviceCodeCalls = append(m.RequestDeviceCodeCalls, struct {
		Creds Credentials
		Scope string
	}{Creds: creds, Scope: scope})

	if m.RequestDeviceCodeFunc != nil {
		return m.RequestDeviceCodeFunc(ctx, creds, scope)
	}

	// Default response
	return &DeviceAuthorizationSession{
		DeviceCode:      "mock-device-code",
		UserCode:        "MOCK-CODE",
		VerificationURL: "https://mock.auth/device",
		ExpiresIn:       1800,
		Interval:        5,
	}, nil
}

// ExchangeCode implements DeviceCodePoller
func (m *MockOAuthClient) ExchangeCode(ctx context.Context, deviceCode string, creds Credentials) ExchangeOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	var at time.Time
	if m.Clock != nil {
		at = m.Clock.Now()
	}
	m.ExchangeCodeCalls = append(m.ExchangeCodeCalls, struct {
		DeviceCode string
		At         time.Time
	}{DeviceCode: deviceCode, At: at})

	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, deviceCode, creds)
	}

	// Default response
	return Success(&TokenResult{
		AccessToken:  "mock-access-token",
		RefreshToken: "mock-refresh-token",
		ExpiresIn:    3600,
		TokenType:    "Bearer",
	})
}

// RefreshAccessToken implements TokenRefresher
func (m *MockOAuthClient) RefreshAccessToken(ctx context.Context, refreshToken string, creds Credentials) (*TokenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefreshCalls = append(m.RefreshCalls, struct {
		RefreshToken string
	}{RefreshToken: refreshToken})

	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken, creds)
	}

	// Default response
	return &TokenResult{
		AccessToken: "mock-refreshed-token",
		ExpiresIn:   3600,
		TokenType:   "Bearer",
	}, nil
}

// Exchangers returns the mock wired into all three slots
func (m *MockOAuthClient) Exchangers() Exchangers {
	return Exchangers{Requester: m, Poller: m, Refresher: m}
}

// Reset clears all recorded calls
func (m *MockOAuthClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RequestDeviceCodeCalls = nil
	m.ExchangeCodeCalls = nil
	m.RefreshCalls = nil
}

// MockHTTPClient is a mock implementation of HTTPClient for testing
type MockHTTPClient struct {
	mu sync.Mutex

	// Do behavior
	DoFunc  func(req *http.Request) (*http.Response, error)
	DoCalls []struct {
		Req *http.Request
	}
}

// Do implements HTTPClient
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DoCalls = append(m.DoCalls, struct {
		Req *http.Request
	}{Req: req})

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}

	return nil, fmt.Errorf("mock HTTP client: no DoFunc configured")
}

// Ensure MockHTTPClient implements HTTPClient
var _ HTTPClient = (*MockHTTPClient)(nil)

// MockDisplay records Show and Hide calls
type MockDisplay struct {
	mu sync.Mutex

	Shown     []*DeviceAuthorizationSession
	HideCalls int
}

// Show implements Display
func (m *MockDisplay) Show(session *DeviceAuthorizationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Shown = append(m.Shown, session)
}

// Hide implements Display
func (m *MockDisplay) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HideCalls++
}

// ShowCount returns how many times Show was called
func (m *MockDisplay) ShowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Shown)
}

// MockStore implements SettingsStore in memory for testing
type MockStore struct {
	mu sync.Mutex

	accessToken  string
	refreshToken string
	err            error
	writeErr       error
	accessWriteErr error
}

// NewMockStore creates a mock settings store holding a refresh token
func NewMockStore(refreshToken string, err error) *MockStore {
	return &MockStore{refreshToken: refreshToken, err: err}
}

// FailWrites makes every Set call return err
func (m *MockStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailAccessWrites makes only SetCachedAccessToken return err
func (m *MockStore) FailAccessWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessWriteErr = err
}

// CachedAccessToken implements SettingsStore
func (m *MockStore) CachedAccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.accessToken, nil
}

// SetCachedAccessToken implements SettingsStore
func (m *MockStore) SetCachedAccessToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.accessWriteErr != nil {
		return m.accessWriteErr
	}
	m.accessToken = token
	return nil
}

// CachedRefreshToken implements SettingsStore
func (m *MockStore) CachedRefreshToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.refreshToken, nil
}

// SetCachedRefreshToken implements SettingsStore
func (m *MockStore) SetCachedRefreshToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.refreshToken = token
	return nil
}

// Clear implements SettingsStore
func (m *MockStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.accessToken = ""
	m.refreshToken = ""
	return nil
}

// Ensure MockStore implements SettingsStore
var _ SettingsStore = (*MockStore)(nil)

// FakeClock is a Clock whose waits complete immediately by advancing simulated time
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps []time.Duration
}

// NewFakeClock creates a fake clock starting at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements Clock
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves simulated time forward
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.Sleeps = append(c.Sleeps, d)
	return c.now
}

// After implements Clock
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return ch
}

// NewTimer implements Clock
func (c *FakeClock) NewTimer() backoff.Timer {
	return &fakeTimer{clock: c}
}

type fakeTimer struct {
	clock *FakeClock
	ch    chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.ch = make(chan time.Time, 1)
	t.ch <- t.clock.Advance(d)
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() {}

// MockBuilder provides a fluent interface for building provider test scenarios
type MockBuilder struct {
	client  *MockOAuthClient
	store   *MockStore
	display *MockDisplay
	clock   *FakeClock
	config  *LoginConfig
	opts    []ProviderOption
}

// NewMockBuilder creates a new mock builder
func NewMockBuilder() *MockBuilder {
	clock := NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return &MockBuilder{
		client:  &MockOAuthClient{Clock: clock},
		store:   NewMockStore("", nil),
		display: &MockDisplay{},
		clock:   clock,
		config:  &LoginConfig{},
	}
}

// WithCachedRefreshToken seeds the store with a refresh token
func (b *MockBuilder) WithCachedRefreshToken(token string) *MockBuilder {
	b.store.refreshToken = token
	return b
}

// WithStoreError configures a store that fails every operation
func (b *MockBuilder) WithStoreError(err error) *MockBuilder {
	b.store.err = err
	return b
}

// WithRefresh configures the refresh response
func (b *MockBuilder) WithRefresh(resp *TokenResult, err error) *MockBuilder {
	b.client.RefreshFunc = func(ctx context.Context, refreshToken string, creds Credentials) (*TokenResult, error) {
		return resp, err
	}
	return b
}

// WithDeviceCode configures the device code response
func (b *MockBuilder) WithDeviceCode(session *DeviceAuthorizationSession, err error) *MockBuilder {
	b.client.RequestDeviceCodeFunc = func(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error) {
		return session, err
	}
	return b
}

// WithPollOutcomes returns the outcomes in order, then stays pending
func (b *MockBuilder) WithPollOutcomes(outcomes ...ExchangeOutcome) *MockBuilder {
	next := 0
	b.client.ExchangeCodeFunc = func(ctx context.Context, deviceCode string, creds Credentials) ExchangeOutcome {
		if next >= len(outcomes) {
			return Pending(false)
		}
		outcome := outcomes[next]
		next++
		return outcome
	}
	return b
}

// WithConfig replaces the login configuration
func (b *MockBuilder) WithConfig(config *LoginConfig) *MockBuilder {
	b.config = config
	return b
}

// WithOptions appends provider options
func (b *MockBuilder) WithOptions(opts ...ProviderOption) *MockBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// Clock returns the simulated clock shared by the provider and the mock client
func (b *MockBuilder) Clock() *FakeClock {
	return b.clock
}

// Build creates a DeviceFlowProvider with the configured mocks
func (b *MockBuilder) Build() (*DeviceFlowProvider, *MockOAuthClient, *MockStore, *MockDisplay) {
	opts := append([]ProviderOption{WithClock(b.clock)}, b.opts...)
	provider := NewDeviceFlowProviderWithExchangers(
		NewTestHelpers().Credentials(),
		b.store,
		b.display,
		b.client.Exchangers(),
		b.config,
		opts...,
	)
	return provider, b.client, b.store, b.display
}

// TestHelpers provides fixtures for tests
type TestHelpers struct{}

// NewTestHelpers creates test helpers
func NewTestHelpers() *TestHelpers {
	return &TestHelpers{}
}

// Credentials returns test client credentials
func (h *TestHelpers) Credentials() Credentials {
	return Credentials{
		ClientID:      "client-123.apps.googleusercontent.com",
		ClientSecret:  "secret-123",
		TokenURI:      "https://oauth2.example.com/token",
		AuthURI:       "https://accounts.example.com/o/oauth2/auth",
		DeviceCodeURI: "https://oauth2.example.com/device/code",
	}
}

// Session returns a test device authorization session
func (h *TestHelpers) Session() *DeviceAuthorizationSession {
	return &DeviceAuthorizationSession{
		DeviceCode:      "D1",
		UserCode:        "U1",
		VerificationURL: "http://x",
		ExpiresIn:       1800,
		Interval:        5,
	}
}

// TokenResult returns a test token set
func (h *TestHelpers) TokenResult() *TokenResult {
	return &TokenResult{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresIn:    3599,
		TokenType:    "Bearer",
	}
}

// APIError returns an ExchangeError carrying the given API error code
func (h *TestHelpers) APIError(op, code, description string) *ExchangeError {
	return &ExchangeError{
		Op:        op,
		Kind:      APIError,
		Transport: "400 Bad Request",
		API:       &TokenError{ErrorCode: code, ErrorDescription: description},
	}
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceFlowProvider_EndToEnd(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		mu        sync.Mutex
		pollTimes []time.Time
	)
	_, creds := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/device/code":
			_, _ = w.Write([]byte(`{"device_code":"D1","user_code":"U1","verification_url":"http://x","expires_in":"1800","interval":"5"}`))
		case "/token":
			assert.Equal(t, "D1", r.PostForm.Get("device_code"))
			mu.Lock()
			pollTimes = append(pollTimes, clock.Now())
			n := len(pollTimes)
			mu.Unlock()

			if n == 1 {
				w.WriteHeader(http.StatusPreconditionRequired)
				_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"A1","refresh_token":"R1","expires_in":3599,"token_type":"Bearer"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	store := NewMockStore("", nil)
	display := &MockDisplay{}
	var completions []Completion

	provider := NewDeviceFlowProvider(creds, store, display, nil,
		WithClock(clock),
		WithLogger(zerolog.Nop()),
		WithCompletionHandler(func(c Completion) { completions = append(completions, c) }),
	)

	token, err := provider.ProvideAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", token)

	require.Len(t, display.Shown, 1)
	assert.Equal(t, "U1", display.Shown[0].UserCode)
	assert.Equal(t, "http://x", display.Shown[0].VerificationURL)
	assert.Equal(t, 1, display.HideCalls)

	require.Len(t, pollTimes, 2)
	assert.GreaterOrEqual(t, pollTimes[1].Sub(pollTimes[0]), 5*time.Second)

	access, _ := store.CachedAccessToken()
	refresh, _ := store.CachedRefreshToken()
	assert.Equal(t, "A1", access)
	assert.Equal(t, "R1", refresh)

	require.Len(t, completions, 1)
	assert.True(t, completions[0].Success)
	assert.Equal(t, "A1", completions[0].AccessToken)
	assert.Equal(t, StateDone, provider.State())
}

func TestDeviceFlowProvider_CascadeTerminates(t *testing.T) {
	helpers := NewTestHelpers()
	provider, client, _, display := NewMockBuilder().
		WithCachedRefreshToken("R0").
		WithRefresh(nil, helpers.APIError("token refresh", "invalid_grant", "Token has been expired or revoked.")).
		WithDeviceCode(nil, helpers.APIError("device code request", "invalid_client", "The OAuth client was not found.")).
		Build()

	_, err := provider.Authorize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, "invalid_client", tokenErr.ErrorCode)

	assert.Len(t, client.RefreshCalls, 1)
	assert.Equal(t, "R0", client.RefreshCalls[0].RefreshToken)
	assert.Len(t, client.RequestDeviceCodeCalls, 1)
	assert.Empty(t, client.ExchangeCodeCalls)
	assert.Equal(t, 0, display.ShowCount())
	assert.Equal(t, 0, display.HideCalls)
	assert.Equal(t, StateDone, provider.State())
}

func TestDeviceFlowProvider_RefreshSuccess(t *testing.T) {
	provider, client, store, display := NewMockBuilder().
		WithCachedRefreshToken("R0").
		WithRefresh(&TokenResult{AccessToken: "A2", ExpiresIn: 3599}, nil).
		Build()

	token, err := provider.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A2", token.AccessToken)

	access, _ := store.CachedAccessToken()
	refresh, _ := store.CachedRefreshToken()
	assert.Equal(t, "A2", access)
	assert.Equal(t, "R0", refresh, "refresh token kept when the server does not rotate it")

	assert.Len(t, client.RefreshCalls, 1)
	assert.Empty(t, client.RequestDeviceCodeCalls)
	assert.Equal(t, 0, display.ShowCount())
}

func TestDeviceFlowProvider_RefreshRotatesToken(t *testing.T) {
	provider, _, store, _ := NewMockBuilder().
		WithCachedRefreshToken("R0").
		WithRefresh(&TokenResult{AccessToken: "A2", RefreshToken: "R2"}, nil).
		Build()

	_, err := provider.Authorize(context.Background())
	require.NoError(t, err)

	refresh, _ := store.CachedRefreshToken()
	assert.Equal(t, "R2", refresh)
}

func TestDeviceFlowProvider_RefreshFailureFallsBack(t *testing.T) {
	helpers := NewTestHelpers()
	provider, client, store, display := NewMockBuilder().
		WithCachedRefreshToken("R0").
		WithRefresh(nil, helpers.APIError("token refresh", "invalid_grant", "")).
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Pending(false), Success(helpers.TokenResult())).
		Build()

	token, err := provider.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", token.AccessToken)

	assert.Len(t, client.RefreshCalls, 1)
	assert.Len(t, client.RequestDeviceCodeCalls, 1)
	assert.Len(t, client.ExchangeCodeCalls, 2)
	assert.Equal(t, 1, display.ShowCount())
	assert.Equal(t, 1, display.HideCalls)

	refresh, _ := store.CachedRefreshToken()
	assert.Equal(t, "R1", refresh)
}

func TestDeviceFlowProvider_PollSpacing(t *testing.T) {
	helpers := NewTestHelpers()
	builder := NewMockBuilder().
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Pending(false), Pending(false), Pending(false), Success(helpers.TokenResult()))
	start := builder.Clock().Now()
	provider, client, _, _ := builder.Build()

	_, err := provider.Authorize(context.Background())
	require.NoError(t, err)

	calls := client.ExchangeCodeCalls
	require.Len(t, calls, 4)
	assert.GreaterOrEqual(t, calls[0].At.Sub(start), 5*time.Second, "first poll waits one interval")
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].At.Sub(calls[i-1].At), 5*time.Second)
	}
}

func TestDeviceFlowProvider_DefaultIntervalWhenMissing(t *testing.T) {
	helpers := NewTestHelpers()
	session := helpers.Session()
	session.Interval = 0

	builder := NewMockBuilder().
		WithDeviceCode(session, nil).
		WithPollOutcomes(Pending(false), Success(helpers.TokenResult()))
	provider, client, _, _ := builder.Build()

	_, err := provider.Authorize(context.Background())
	require.NoError(t, err)

	calls := client.ExchangeCodeCalls
	require.Len(t, calls, 2)
	assert.Equal(t, DefaultPollInterval, calls[1].At.Sub(calls[0].At))
}

func TestDeviceFlowProvider_SlowDown(t *testing.T) {
	helpers := NewTestHelpers()
	provider, client, _, _ := NewMockBuilder().
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Pending(true), Pending(false), Success(helpers.TokenResult())).
		Build()

	_, err := provider.Authorize(context.Background())
	require.NoError(t, err)

	calls := client.ExchangeCodeCalls
	require.Len(t, calls, 3)
	assert.Equal(t, 10*time.Second, calls[1].At.Sub(calls[0].At))
	assert.Equal(t, 10*time.Second, calls[2].At.Sub(calls[1].At), "slow_down increase persists")
}

func TestDeviceFlowProvider_TerminalPollError(t *testing.T) {
	helpers := NewTestHelpers()
	denied := helpers.APIError("device code exchange", "access_denied", "")
	provider, client, store, display := NewMockBuilder().
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Pending(false), Failure(denied)).
		Build()

	_, err := provider.Authorize(context.Background())
	require.Error(t, err)

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.True(t, tokenErr.IsAccessDenied())

	assert.Len(t, client.ExchangeCodeCalls, 2)
	assert.Equal(t, 1, display.ShowCount())
	assert.Equal(t, 1, display.HideCalls)

	access, _ := store.CachedAccessToken()
	assert.Empty(t, access)
}

func TestDeviceFlowProvider_DeviceCodeExpires(t *testing.T) {
	helpers := NewTestHelpers()
	session := helpers.Session()
	session.ExpiresIn = 12

	provider, client, store, display := NewMockBuilder().
		WithDeviceCode(session, nil).
		WithPollOutcomes(Pending(false)).
		Build()

	_, err := provider.Authorize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceCodeExpired)
	assert.Equal(t, StateDone, provider.State())

	access, _ := store.CachedAccessToken()
	assert.Empty(t, access)

	// polls at +5s and +10s, expiry detected before the +15s poll
	assert.Len(t, client.ExchangeCodeCalls, 2)
	assert.Equal(t, 1, display.HideCalls)
}

func TestDeviceFlowProvider_LoginTimeout(t *testing.T) {
	helpers := NewTestHelpers()
	provider, client, _, display := NewMockBuilder().
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Pending(false)).
		WithConfig(&LoginConfig{LoginTimeout: 7 * time.Second}).
		Build()

	_, err := provider.Authorize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceCodeExpired)
	assert.Len(t, client.ExchangeCodeCalls, 1)
	assert.Equal(t, 1, display.HideCalls)
}

func TestDeviceFlowProvider_Cancel(t *testing.T) {
	helpers := NewTestHelpers()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builder := NewMockBuilder().WithDeviceCode(helpers.Session(), nil)
	provider, client, store, display := builder.Build()

	polls := 0
	client.ExchangeCodeFunc = func(ctx context.Context, deviceCode string, creds Credentials) ExchangeOutcome {
		polls++
		if polls == 2 {
			cancel()
		}
		return Pending(false)
	}

	_, err := provider.Authorize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, polls)
	assert.Equal(t, 1, display.ShowCount())
	assert.Equal(t, 1, display.HideCalls)

	access, _ := store.CachedAccessToken()
	assert.Empty(t, access)
}

func TestDeviceFlowProvider_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider, client, _, display := NewMockBuilder().
		WithCachedRefreshToken("R0").
		WithRefresh(nil, errors.New("refresh aborted")).
		Build()

	_, err := provider.Authorize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.RequestDeviceCodeCalls)
	assert.Equal(t, 0, display.ShowCount())
}

func TestDeviceFlowProvider_Force(t *testing.T) {
	helpers := NewTestHelpers()
	provider, client, _, display := NewMockBuilder().
		WithCachedRefreshToken("R0").
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Success(helpers.TokenResult())).
		WithConfig(&LoginConfig{Force: true}).
		Build()

	_, err := provider.Authorize(context.Background())
	require.NoError(t, err)

	assert.Empty(t, client.RefreshCalls)
	assert.Len(t, client.RequestDeviceCodeCalls, 1)
	assert.Equal(t, 1, display.ShowCount())
}

func TestDeviceFlowProvider_Scope(t *testing.T) {
	tests := []struct {
		name   string
		config *LoginConfig
		want   string
	}{
		{name: "default", config: &LoginConfig{}, want: DefaultScope},
		{name: "custom", config: &LoginConfig{Scope: "openid"}, want: "openid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			helpers := NewTestHelpers()
			provider, client, _, _ := NewMockBuilder().
				WithDeviceCode(helpers.Session(), nil).
				WithPollOutcomes(Success(helpers.TokenResult())).
				WithConfig(tt.config).
				Build()

			_, err := provider.Authorize(context.Background())
			require.NoError(t, err)
			require.Len(t, client.RequestDeviceCodeCalls, 1)
			assert.Equal(t, tt.want, client.RequestDeviceCodeCalls[0].Scope)
		})
	}
}

func TestDeviceFlowProvider_StoreErrors(t *testing.T) {
	t.Run("unreadable store falls back to device flow", func(t *testing.T) {
		helpers := NewTestHelpers()
		provider, client, _, display := NewMockBuilder().
			WithStoreError(errors.New("keyring locked")).
			WithDeviceCode(helpers.Session(), nil).
			WithPollOutcomes(Success(helpers.TokenResult())).
			Build()

		_, err := provider.Authorize(context.Background())
		require.Error(t, err, "caching the new tokens fails too")
		assert.Contains(t, err.Error(), "failed to cache refresh token")
		assert.Contains(t, err.Error(), "keyring locked")

		assert.Empty(t, client.RefreshCalls)
		assert.Len(t, client.RequestDeviceCodeCalls, 1)
		assert.Equal(t, 1, display.HideCalls)
	})

	t.Run("write failure after refresh is terminal", func(t *testing.T) {
		builder := NewMockBuilder().
			WithCachedRefreshToken("R0").
			WithRefresh(&TokenResult{AccessToken: "A2"}, nil)
		provider, client, store, display := builder.Build()
		store.FailWrites(errors.New("disk full"))

		_, err := provider.Authorize(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Empty(t, client.RequestDeviceCodeCalls)
		assert.Equal(t, 0, display.ShowCount())
	})

	t.Run("write failure after device flow is terminal", func(t *testing.T) {
		helpers := NewTestHelpers()
		provider, _, store, display := NewMockBuilder().
			WithDeviceCode(helpers.Session(), nil).
			WithPollOutcomes(Success(helpers.TokenResult())).
			Build()
		store.FailWrites(errors.New("disk full"))

		_, err := provider.Authorize(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to cache refresh token")
		assert.Equal(t, 1, display.HideCalls)

		access, _ := store.CachedAccessToken()
		assert.Empty(t, access, "access token must not be cached without its refresh token")
	})

	t.Run("access write failure keeps the new refresh token", func(t *testing.T) {
		provider, _, store, _ := NewMockBuilder().
			WithCachedRefreshToken("R0").
			WithRefresh(&TokenResult{AccessToken: "A2", RefreshToken: "R2"}, nil).
			Build()
		store.FailAccessWrites(errors.New("disk full"))

		_, err := provider.Authorize(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to cache access token")

		refresh, _ := store.CachedRefreshToken()
		assert.Equal(t, "R2", refresh)
		access, _ := store.CachedAccessToken()
		assert.Empty(t, access)
	})
}

func TestDeviceFlowProvider_NilStore(t *testing.T) {
	helpers := NewTestHelpers()
	client := &MockOAuthClient{}
	client.RequestDeviceCodeFunc = func(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error) {
		return helpers.Session(), nil
	}

	provider := NewDeviceFlowProviderWithExchangers(helpers.Credentials(), nil, nil, client.Exchangers(), nil,
		WithClock(NewFakeClock(time.Now())))

	token, err := provider.ProvideAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock-access-token", token)
	assert.Empty(t, client.RefreshCalls)
}

func TestDeviceFlowProvider_InvalidCredentials(t *testing.T) {
	client := &MockOAuthClient{}
	provider := NewDeviceFlowProviderWithExchangers(Credentials{}, NewMockStore("R0", nil), nil, client.Exchangers(), nil)

	_, err := provider.Authorize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id is required")
	assert.Empty(t, client.RefreshCalls)
	assert.Empty(t, client.RequestDeviceCodeCalls)
}

func TestDeviceFlowProvider_CompletionOncePerAttempt(t *testing.T) {
	helpers := NewTestHelpers()
	var fired int32
	provider, _, _, _ := NewMockBuilder().
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Pending(false), Failure(helpers.APIError("device code exchange", "access_denied", ""))).
		WithOptions(WithCompletionHandler(func(c Completion) {
			atomic.AddInt32(&fired, 1)
			assert.False(t, c.Success)
			assert.Error(t, c.Err)
		})).
		Build()

	_, err := provider.Authorize(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDeviceFlowProvider_Async(t *testing.T) {
	helpers := NewTestHelpers()
	provider, _, _, _ := NewMockBuilder().
		WithDeviceCode(helpers.Session(), nil).
		WithPollOutcomes(Success(helpers.TokenResult())).
		Build()

	done := provider.ProvideAccessTokenAsync(context.Background())

	select {
	case completion, ok := <-done:
		require.True(t, ok)
		assert.True(t, completion.Success)
		assert.Equal(t, "A1", completion.AccessToken)
	case <-time.After(5 * time.Second):
		t.Fatal("completion not delivered")
	}

	_, ok := <-done
	assert.False(t, ok, "channel closed after one completion")
}

func TestDeviceFlowProvider_ConcurrentCallersShareAttempt(t *testing.T) {
	helpers := NewTestHelpers()
	started := make(chan struct{})
	release := make(chan struct{})

	var fired int32
	builder := NewMockBuilder().
		WithPollOutcomes(Success(helpers.TokenResult())).
		WithOptions(WithCompletionHandler(func(Completion) { atomic.AddInt32(&fired, 1) }))
	provider, client, _, display := builder.Build()

	var once sync.Once
	client.RequestDeviceCodeFunc = func(ctx context.Context, creds Credentials, scope string) (*DeviceAuthorizationSession, error) {
		once.Do(func() { close(started) })
		<-release
		return helpers.Session(), nil
	}

	const callers = 3
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = provider.ProvideAccessToken(context.Background())
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = provider.ProvideAccessToken(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "A1", results[i])
	}
	assert.Len(t, client.RequestDeviceCodeCalls, 1)
	assert.Equal(t, 1, display.ShowCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRefreshing, "refreshing"},
		{StateExchangingDeviceCode, "exchanging_device_code"},
		{StatePollingAuthorization, "polling_authorization"},
		{StateDone, "done"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

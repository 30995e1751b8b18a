package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Credentials) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds := NewTestHelpers().Credentials()
	creds.DeviceCodeURI = server.URL + "/device/code"
	creds.TokenURI = server.URL + "/token"
	return server, creds
}

func TestLimitedDeviceExchanger_RequestDeviceCode(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantKind   ErrorKind
		wantInErr  []string
		wantResult *DeviceAuthorizationSession
	}{
		{
			name:   "numeric fields",
			status: http.StatusOK,
			body:   `{"device_code":"D1","user_code":"U1","verification_url":"http://x","expires_in":1800,"interval":5}`,
			wantResult: &DeviceAuthorizationSession{
				DeviceCode: "D1", UserCode: "U1", VerificationURL: "http://x", ExpiresIn: 1800, Interval: 5,
			},
		},
		{
			name:   "string encoded fields",
			status: http.StatusOK,
			body:   `{"device_code":"D1","user_code":"U1","verification_url":"http://x","expires_in":"1800","interval":"5"}`,
			wantResult: &DeviceAuthorizationSession{
				DeviceCode: "D1", UserCode: "U1", VerificationURL: "http://x", ExpiresIn: 1800, Interval: 5,
			},
		},
		{
			name:   "rfc verification_uri alias",
			status: http.StatusOK,
			body:   `{"device_code":"D2","user_code":"U2","verification_uri":"https://example.com/device","expires_in":600,"interval":0}`,
			wantResult: &DeviceAuthorizationSession{
				DeviceCode: "D2", UserCode: "U2", VerificationURL: "https://example.com/device", ExpiresIn: 600,
			},
		},
		{
			name:      "api error in success body",
			status:    http.StatusOK,
			body:      `{"error":"invalid_scope","error_description":"scope not allowed"}`,
			wantErr:   true,
			wantKind:  APIError,
			wantInErr: []string{"invalid_scope", "scope not allowed"},
		},
		{
			name:      "api error with error status",
			status:    http.StatusUnauthorized,
			body:      `{"error":"invalid_client","error_description":"The OAuth client was not found."}`,
			wantErr:   true,
			wantKind:  APIError,
			wantInErr: []string{"401 Unauthorized", "invalid_client", "The OAuth client was not found."},
		},
		{
			name:      "error status without body",
			status:    http.StatusInternalServerError,
			wantErr:   true,
			wantKind:  TransportError,
			wantInErr: []string{"500 Internal Server Error"},
		},
		{
			name:     "unparsable body",
			status:   http.StatusOK,
			body:     `<html>nope</html>`,
			wantErr:  true,
			wantKind: ProtocolViolation,
		},
		{
			name:     "missing device code",
			status:   http.StatusOK,
			body:     `{"user_code":"U1"}`,
			wantErr:  true,
			wantKind: ProtocolViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, creds := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			exchanger := NewLimitedDeviceExchanger(nil, zerolog.Nop())
			session, err := exchanger.RequestDeviceCode(context.Background(), creds, DefaultScope)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, session)

				var exErr *ExchangeError
				require.True(t, errors.As(err, &exErr))
				assert.Equal(t, tt.wantKind, exErr.Kind)
				for _, s := range tt.wantInErr {
					assert.Contains(t, err.Error(), s)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, session)
		})
	}
}

func TestLimitedDeviceExchanger_RequestShape(t *testing.T) {
	var (
		gotForm   map[string]string
		gotHeader http.Header
		gotPath   string
		gotMethod string
	)
	_, creds := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		gotHeader = r.Header.Clone()
		gotPath = r.URL.Path
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"device_code":"D1","user_code":"U1","verification_url":"http://x","expires_in":1800,"interval":5}`))
	})

	exchanger := NewLimitedDeviceExchanger(nil, zerolog.Nop())
	_, err := exchanger.RequestDeviceCode(context.Background(), creds, "openid email")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/device/code", gotPath)
	assert.Equal(t, map[string]string{
		"client_id": creds.ClientID,
		"scope":     "openid email",
	}, gotForm)
	assert.Equal(t, formContentType, gotHeader.Get("Content-Type"))
	assert.Equal(t, acceptHeader, gotHeader.Get("Accept"))
}

func TestLimitedDeviceExchanger_NetworkError(t *testing.T) {
	mock := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}

	exchanger := NewLimitedDeviceExchanger(mock, zerolog.Nop())
	_, err := exchanger.RequestDeviceCode(context.Background(), NewTestHelpers().Credentials(), DefaultScope)
	require.Error(t, err)

	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, TransportError, exErr.Kind)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, mock.DoCalls, 1, "no retry expected")
}

func TestLimitedDeviceExchanger_Async(t *testing.T) {
	_, creds := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"device_code":"D1","user_code":"U1","verification_url":"http://x","expires_in":1800,"interval":5}`))
	})

	exchanger := NewLimitedDeviceExchanger(nil, zerolog.Nop())
	results := exchanger.RequestDeviceCodeAsync(context.Background(), creds, DefaultScope)

	result, ok := <-results
	require.True(t, ok)
	require.NoError(t, result.Err)
	assert.Equal(t, "U1", result.Session.UserCode)

	_, ok = <-results
	assert.False(t, ok, "channel should be closed after one result")
}

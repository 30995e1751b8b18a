// Package drive is a minimal Google Drive v3 client authorized by an oauth2.TokenSource
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Google APIs root
	DefaultBaseURL = "https://www.googleapis.com"

	aboutPath   = "/drive/v3/about"
	aboutFields = "user,storageQuota"

	requestTimeout = 30 * time.Second
)

// Client calls the Drive API with a bearer token from its token source
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Drive client. An empty baseURL uses DefaultBaseURL.
func NewClient(ts oauth2.TokenSource, baseURL string) (*Client, error) {
	if ts == nil {
		return nil, fmt.Errorf("drive client requires a token source")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &Client{
		httpClient: newHTTPClient(ts),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// newHTTPClient returns a client whose transport sets the bearer header from ts
func newHTTPClient(ts oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   http.DefaultTransport,
		},
		Timeout: requestTimeout,
	}
}

// User is the Drive account owner
type User struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	PermissionID string `json:"permissionId"`
	PhotoLink    string `json:"photoLink,omitempty"`
}

// StorageQuota reports usage in bytes. Drive returns the numbers as strings.
type StorageQuota struct {
	Limit             int64 `json:"limit,string,omitempty"`
	Usage             int64 `json:"usage,string"`
	UsageInDrive      int64 `json:"usageInDrive,string"`
	UsageInDriveTrash int64 `json:"usageInDriveTrash,string"`
}

// Unlimited reports whether the account has no storage limit
func (q StorageQuota) Unlimited() bool {
	return q.Limit == 0
}

// About describes the authorized user and their storage
type About struct {
	User         User         `json:"user"`
	StorageQuota StorageQuota `json:"storageQuota"`
}

// APIError is an error response from the Drive API
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: HTTP %d: %s", e.StatusCode, e.Message)
}

// About retrieves the authorized user and their storage quota
func (c *Client) About(ctx context.Context) (*About, error) {
	query := url.Values{"fields": {aboutFields}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+aboutPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get about: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var about About
	if err := json.Unmarshal(body, &about); err != nil {
		return nil, fmt.Errorf("unexpected response format: %w", err)
	}
	return &about, nil
}

func parseAPIError(statusCode int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = statusCode
		return envelope.Error
	}
	return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}

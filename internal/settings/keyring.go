// Package settings persists the cached OAuth tokens used by the auth providers
package settings

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/fastertools/drivelink/internal/auth"
)

// KeyringService is the service name under which tokens are stored in the OS keyring
const KeyringService = "drivelink"

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
)

// KeyringStore implements auth.SettingsStore using the OS keyring.
// Each OAuth client gets its own pair of accounts.
type KeyringStore struct {
	clientID string
}

// Ensure KeyringStore implements auth.SettingsStore
var _ auth.SettingsStore = (*KeyringStore)(nil)

// NewKeyringStore creates a new keyring-based settings store
func NewKeyringStore(clientID string) (*KeyringStore, error) {
	if clientID == "" {
		return nil, fmt.Errorf("keyring store requires a client ID")
	}
	// The zalando keyring library handles backend selection automatically
	return &KeyringStore{clientID: clientID}, nil
}

func (s *KeyringStore) account(key string) string {
	return s.clientID + "/" + key
}

func (s *KeyringStore) get(key string) (string, error) {
	value, err := keyring.Get(KeyringService, s.account(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, nil
}

func (s *KeyringStore) set(key, value string) error {
	if value == "" {
		return s.delete(key)
	}
	if err := keyring.Set(KeyringService, s.account(key), value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *KeyringStore) delete(key string) error {
	err := keyring.Delete(KeyringService, s.account(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// CachedAccessToken returns the stored access token, or "" when none is stored
func (s *KeyringStore) CachedAccessToken() (string, error) {
	return s.get(accessTokenKey)
}

// SetCachedAccessToken stores the access token
func (s *KeyringStore) SetCachedAccessToken(token string) error {
	return s.set(accessTokenKey, token)
}

// CachedRefreshToken returns the stored refresh token, or "" when none is stored
func (s *KeyringStore) CachedRefreshToken() (string, error) {
	return s.get(refreshTokenKey)
}

// SetCachedRefreshToken stores the refresh token
func (s *KeyringStore) SetCachedRefreshToken(token string) error {
	return s.set(refreshTokenKey, token)
}

// Clear removes both tokens from the keyring
func (s *KeyringStore) Clear() error {
	if err := s.delete(accessTokenKey); err != nil {
		return err
	}
	return s.delete(refreshTokenKey)
}

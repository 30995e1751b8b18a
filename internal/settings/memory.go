package settings

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/fastertools/drivelink/internal/auth"
)

// DefaultAccessTokenTTL bounds how long a cached access token is served.
// Google access tokens live for one hour.
const DefaultAccessTokenTTL = time.Hour

// MemoryStore implements auth.SettingsStore in process memory using ttlcache.
// Access tokens expire after the configured TTL, refresh tokens never do.
type MemoryStore struct {
	cache     *ttlcache.Cache[string, string]
	accessTTL time.Duration
}

// Ensure MemoryStore implements auth.SettingsStore
var _ auth.SettingsStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store with automatic cleanup
func NewMemoryStore(accessTTL time.Duration) *MemoryStore {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](accessTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryStore{cache: cache, accessTTL: accessTTL}
}

func (s *MemoryStore) get(key string) string {
	item := s.cache.Get(key)
	if item == nil {
		return ""
	}
	return item.Value()
}

// CachedAccessToken implements auth.SettingsStore
func (s *MemoryStore) CachedAccessToken() (string, error) {
	return s.get(accessTokenKey), nil
}

// SetCachedAccessToken implements auth.SettingsStore
func (s *MemoryStore) SetCachedAccessToken(token string) error {
	if token == "" {
		s.cache.Delete(accessTokenKey)
		return nil
	}
	s.cache.Set(accessTokenKey, token, s.accessTTL)
	return nil
}

// CachedRefreshToken implements auth.SettingsStore
func (s *MemoryStore) CachedRefreshToken() (string, error) {
	return s.get(refreshTokenKey), nil
}

// SetCachedRefreshToken implements auth.SettingsStore
func (s *MemoryStore) SetCachedRefreshToken(token string) error {
	if token == "" {
		s.cache.Delete(refreshTokenKey)
		return nil
	}
	s.cache.Set(refreshTokenKey, token, ttlcache.NoTTL)
	return nil
}

// Clear removes all tokens
func (s *MemoryStore) Clear() error {
	s.cache.DeleteAll()
	return nil
}

// Close stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}

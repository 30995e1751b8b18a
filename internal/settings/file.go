package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fastertools/drivelink/internal/auth"
)

const fileVersion = "1"

// ClientTokens holds the tokens cached for one OAuth client
type ClientTokens struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type fileSettings struct {
	Version string                   `json:"version"`
	Clients map[string]*ClientTokens `json:"clients"`
}

// FileStore implements auth.SettingsStore with a JSON file readable only by the owner
type FileStore struct {
	path     string
	clientID string

	mu sync.Mutex
}

// Ensure FileStore implements auth.SettingsStore
var _ auth.SettingsStore = (*FileStore)(nil)

// DefaultPath returns the settings file location under the user config directory
func DefaultPath() (string, error) {
	var configDir string

	// Check XDG_CONFIG_HOME first for testing and Linux compatibility
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		configDir = xdgConfig
	} else {
		var err error
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to get config directory: %w", err)
		}
	}

	return filepath.Join(configDir, "drivelink", "settings.json"), nil
}

// NewFileStore creates a file-backed store. An empty path uses DefaultPath.
func NewFileStore(path, clientID string) (*FileStore, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return &FileStore{path: path, clientID: clientID}, nil
}

// Path returns the location of the settings file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (*fileSettings, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - path is chosen by the user or DefaultPath
	if err != nil {
		if os.IsNotExist(err) {
			return &fileSettings{Version: fileVersion, Clients: map[string]*ClientTokens{}}, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var settings fileSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if settings.Clients == nil {
		settings.Clients = map[string]*ClientTokens{}
	}
	return &settings, nil
}

func (s *FileStore) save(settings *fileSettings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Write atomically by writing to temp file then renaming
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (s *FileStore) tokens() (ClientTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return ClientTokens{}, err
	}
	if t, ok := settings.Clients[s.clientID]; ok && t != nil {
		return *t, nil
	}
	return ClientTokens{}, nil
}

func (s *FileStore) update(fn func(*ClientTokens)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return err
	}

	t, ok := settings.Clients[s.clientID]
	if !ok || t == nil {
		t = &ClientTokens{}
		settings.Clients[s.clientID] = t
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()

	if t.AccessToken == "" && t.RefreshToken == "" {
		delete(settings.Clients, s.clientID)
	}
	settings.Version = fileVersion
	return s.save(settings)
}

// CachedAccessToken implements auth.SettingsStore
func (s *FileStore) CachedAccessToken() (string, error) {
	t, err := s.tokens()
	return t.AccessToken, err
}

// SetCachedAccessToken implements auth.SettingsStore
func (s *FileStore) SetCachedAccessToken(token string) error {
	return s.update(func(t *ClientTokens) { t.AccessToken = token })
}

// CachedRefreshToken implements auth.SettingsStore
func (s *FileStore) CachedRefreshToken() (string, error) {
	t, err := s.tokens()
	return t.RefreshToken, err
}

// SetCachedRefreshToken implements auth.SettingsStore
func (s *FileStore) SetCachedRefreshToken(token string) error {
	return s.update(func(t *ClientTokens) { t.RefreshToken = token })
}

// Clear forgets the tokens of this client. Other clients in the file are kept.
func (s *FileStore) Clear() error {
	return s.update(func(t *ClientTokens) {
		t.AccessToken = ""
		t.RefreshToken = ""
	})
}

// Package config resolves drivelink settings from flags, environment variables and files
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/fastertools/drivelink/internal/auth"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. DRIVELINK_CLIENT_ID
	EnvPrefix = "DRIVELINK"
	// ConfigName is the base name of the optional config file
	ConfigName = "drivelink"
)

// Keys understood by Load
const (
	KeyClientID          = "client_id"
	KeyClientSecret      = "client_secret"
	KeyTokenURI          = "token_uri"
	KeyAuthURI           = "auth_uri"
	KeyDeviceCodeURI     = "device_code_uri"
	KeyScope             = "scope"
	KeyClientSecretsFile = "client_secrets_file"
	KeyStore             = "store"
	KeySettingsPath      = "settings_path"
	KeyRedisAddr         = "redis_addr"
	KeyRedisPrefix       = "redis_prefix"
	KeyLoginTimeout      = "login_timeout"
	KeyNoBrowser         = "no_browser"
	KeyProvider          = "provider"
	KeyDriveURL          = "drive_url"
)

// DefaultDriveURL is the Google Drive API root
const DefaultDriveURL = "https://www.googleapis.com"

// Config holds the resolved settings for one invocation
type Config struct {
	ClientID          string
	ClientSecret      string
	TokenURI          string
	AuthURI           string
	DeviceCodeURI     string
	Scope             string
	ClientSecretsFile string
	Store             string
	SettingsPath      string
	RedisAddr         string
	RedisPrefix       string
	LoginTimeout      time.Duration
	NoBrowser         bool
	Provider          string
	DriveURL          string
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyClientID, "")
	v.SetDefault(KeyClientSecret, "")
	v.SetDefault(KeyTokenURI, auth.DefaultTokenURI)
	v.SetDefault(KeyAuthURI, auth.DefaultAuthURI)
	v.SetDefault(KeyDeviceCodeURI, auth.DefaultDeviceCodeURI)
	v.SetDefault(KeyScope, auth.DefaultScope)
	v.SetDefault(KeyClientSecretsFile, "")
	v.SetDefault(KeyStore, "keyring")
	v.SetDefault(KeySettingsPath, "")
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRedisPrefix, "drivelink")
	v.SetDefault(KeyLoginTimeout, auth.LoginTimeout)
	v.SetDefault(KeyNoBrowser, false)
	v.SetDefault(KeyProvider, string(auth.VariantDeviceFlow))
	v.SetDefault(KeyDriveURL, DefaultDriveURL)
}

// NewViper returns a viper instance reading DRIVELINK_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Dir returns the drivelink directory under the user config directory
func Dir() (string, error) {
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

	return filepath.Join(configDir, ConfigName), nil
}

// DefaultConfigPath is where 'auth configure' writes its answers
func DefaultConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigName+".yaml"), nil
}

// ReadInConfig reads path, or searches the working and config directories for
// drivelink.{yaml,toml,json}. A missing file is not an error when searching.
func ReadInConfig(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to read config file")
	}
	return v.ConfigFileUsed(), nil
}

// Load builds a Config from v. Client credentials missing from v are taken
// from the client secrets file, which is auto-detected when not configured.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ClientID:          v.GetString(KeyClientID),
		ClientSecret:      v.GetString(KeyClientSecret),
		TokenURI:          v.GetString(KeyTokenURI),
		AuthURI:           v.GetString(KeyAuthURI),
		DeviceCodeURI:     v.GetString(KeyDeviceCodeURI),
		Scope:             v.GetString(KeyScope),
		ClientSecretsFile: v.GetString(KeyClientSecretsFile),
		Store:             v.GetString(KeyStore),
		SettingsPath:      v.GetString(KeySettingsPath),
		RedisAddr:         v.GetString(KeyRedisAddr),
		RedisPrefix:       v.GetString(KeyRedisPrefix),
		LoginTimeout:      v.GetDuration(KeyLoginTimeout),
		NoBrowser:         v.GetBool(KeyNoBrowser),
		Provider:          v.GetString(KeyProvider),
		DriveURL:          v.GetString(KeyDriveURL),
	}

	if cfg.ClientSecretsFile == "" && cfg.ClientID == "" {
		if found, err := FindClientSecretsFile(DefaultOptions()); err == nil {
			cfg.ClientSecretsFile = found.Path
		}
	}

	if cfg.ClientSecretsFile != "" {
		secrets, err := LoadClientSecrets(cfg.ClientSecretsFile)
		if err != nil {
			return nil, err
		}
		cfg.merge(secrets)
	}

	return cfg, nil
}

// merge fills credentials from a secrets file. Endpoints configured away from
// their defaults win over the file.
func (c *Config) merge(secrets *auth.Credentials) {
	if c.ClientID == "" {
		c.ClientID = secrets.ClientID
	}
	if c.ClientSecret == "" {
		c.ClientSecret = secrets.ClientSecret
	}
	if secrets.TokenURI != "" && (c.TokenURI == "" || c.TokenURI == auth.DefaultTokenURI) {
		c.TokenURI = secrets.TokenURI
	}
	if secrets.AuthURI != "" && (c.AuthURI == "" || c.AuthURI == auth.DefaultAuthURI) {
		c.AuthURI = secrets.AuthURI
	}
	if secrets.DeviceCodeURI != "" && (c.DeviceCodeURI == "" || c.DeviceCodeURI == auth.DefaultDeviceCodeURI) {
		c.DeviceCodeURI = secrets.DeviceCodeURI
	}
}

// Validate reports settings that make authorization impossible
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("no OAuth client configured: run 'drivelink auth configure' or set DRIVELINK_CLIENT_ID")
	}
	if c.LoginTimeout < 0 {
		return errors.Errorf("login timeout must not be negative, got %s", c.LoginTimeout)
	}
	return nil
}

// Credentials returns the OAuth client credentials with Google defaults applied
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		TokenURI:      c.TokenURI,
		AuthURI:       c.AuthURI,
		DeviceCodeURI: c.DeviceCodeURI,
	}.WithDefaults()
}

// LoginConfig returns the device flow settings
func (c *Config) LoginConfig(force bool) *auth.LoginConfig {
	return &auth.LoginConfig{
		Scope:        c.Scope,
		LoginTimeout: c.LoginTimeout,
		Force:        force,
	}
}

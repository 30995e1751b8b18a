package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of the settings written by 'auth configure'
type File struct {
	ClientID          string `yaml:"client_id,omitempty" toml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret      string `yaml:"client_secret,omitempty" toml:"client_secret,omitempty" json:"client_secret,omitempty"`
	ClientSecretsFile string `yaml:"client_secrets_file,omitempty" toml:"client_secrets_file,omitempty" json:"client_secrets_file,omitempty"`
	Scope             string `yaml:"scope,omitempty" toml:"scope,omitempty" json:"scope,omitempty"`
	Store             string `yaml:"store,omitempty" toml:"store,omitempty" json:"store,omitempty"`
	SettingsPath      string `yaml:"settings_path,omitempty" toml:"settings_path,omitempty" json:"settings_path,omitempty"`
	RedisAddr         string `yaml:"redis_addr,omitempty" toml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPrefix       string `yaml:"redis_prefix,omitempty" toml:"redis_prefix,omitempty" json:"redis_prefix,omitempty"`
	LoginTimeout      string `yaml:"login_timeout,omitempty" toml:"login_timeout,omitempty" json:"login_timeout,omitempty"`
	NoBrowser         bool   `yaml:"no_browser,omitempty" toml:"no_browser,omitempty" json:"no_browser,omitempty"`
	Provider          string `yaml:"provider,omitempty" toml:"provider,omitempty" json:"provider,omitempty"`
}

// Save writes the file in the format given by the extension of path.
// The file may hold a client secret so it is only readable by the owner.
func (f *File) Save(path string) error {
	var (
		data []byte
		err  error
	)

	switch detectFormat(path) {
	case "yaml":
		data, err = yaml.Marshal(f)
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(f)
		data = buf.Bytes()
	case "json":
		data, err = json.MarshalIndent(f, "", "  ")
	default:
		return fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	// Write atomically by writing to temp file then renaming
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to save config")
	}
	return nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fastertools/drivelink/internal/auth"
)

// clientSecretsFile mirrors the client_secret.json downloaded from the Google
// Cloud console. Desktop and TV clients use "installed", web clients "web".
type clientSecretsFile struct {
	Installed *auth.Credentials `json:"installed" yaml:"installed" toml:"installed"`
	Web       *auth.Credentials `json:"web" yaml:"web" toml:"web"`
}

// LoadClientSecrets reads OAuth client credentials from a JSON, YAML or TOML file.
// The credentials may be wrapped in "installed" or "web", or stored flat.
func LoadClientSecrets(path string) (*auth.Credentials, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is supplied by the user
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read client secrets file %s", path)
	}

	format := detectFormat(path)
	unmarshal, err := unmarshaler(format)
	if err != nil {
		return nil, err
	}

	var wrapped clientSecretsFile
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s client secrets", strings.ToUpper(format))
	}

	creds := wrapped.Installed
	if creds == nil {
		creds = wrapped.Web
	}
	if creds == nil {
		creds = &auth.Credentials{}
		if err := unmarshal(data, creds); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s client secrets", strings.ToUpper(format))
		}
	}

	if creds.ClientID == "" {
		return nil, errors.Errorf("client secrets file %s has no client_id", filepath.Base(path))
	}
	return creds, nil
}

func unmarshaler(format string) (func([]byte, interface{}) error, error) {
	switch format {
	case "json":
		return json.Unmarshal, nil
	case "yaml":
		return yaml.Unmarshal, nil
	case "toml":
		return toml.Unmarshal, nil
	default:
		return nil, fmt.Errorf("unsupported client secrets format: %s", format)
	}
}

package settings

import (
	"fmt"
	"time"

	"github.com/fastertools/drivelink/internal/auth"
)

// Kind names a settings store backend
type Kind string

const (
	KindKeyring Kind = "keyring"
	KindFile    Kind = "file"
	KindMemory  Kind = "memory"
	KindRedis   Kind = "redis"
)

// Kinds lists the supported backends in the order they are offered to users
func Kinds() []Kind {
	return []Kind{KindKeyring, KindFile, KindMemory, KindRedis}
}

// Options configures the backend returned by Open
type Options struct {
	ClientID    string
	Path        string
	RedisAddr   string
	RedisPrefix string
	AccessTTL   time.Duration
}

// Open creates the settings store for kind. An empty kind selects the keyring.
// Stores holding resources also implement io.Closer.
//
//nolint:ireturn
func Open(kind Kind, opts Options) (auth.SettingsStore, error) {
	switch kind {
	case KindKeyring, "":
		store, err := NewKeyringStore(opts.ClientID)
		if err != nil {
			return nil, err
		}
		return store, nil
	case KindFile:
		store, err := NewFileStore(opts.Path, opts.ClientID)
		if err != nil {
			return nil, err
		}
		return store, nil
	case KindMemory:
		return NewMemoryStore(opts.AccessTTL), nil
	case KindRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis store requires an address")
		}
		return NewRedisStore(NewRedisClient(opts.RedisAddr), opts.RedisPrefix, opts.ClientID, opts.AccessTTL), nil
	default:
		return nil, fmt.Errorf("unknown settings store %q (expected one of %v)", kind, Kinds())
	}
}

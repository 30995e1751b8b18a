package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"github.com/fastertools/drivelink/internal/auth"
	"github.com/fastertools/drivelink/internal/config"
	"github.com/fastertools/drivelink/internal/settings"
)

// session holds what every authenticated command needs
type session struct {
	cfg    *config.Config
	store  auth.SettingsStore
	logger zerolog.Logger
}

// openSession loads the configuration and opens the configured token store
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, store: store, logger: newLogger()}, nil
}

func openStore(cfg *config.Config) (auth.SettingsStore, error) {
	store, err := settings.Open(settings.Kind(cfg.Store), settings.Options{
		ClientID:    cfg.ClientID,
		Path:        cfg.SettingsPath,
		RedisAddr:   cfg.RedisAddr,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}
	return store, nil
}

// Close releases the token store
func (s *session) Close() {
	if c, ok := s.store.(io.Closer); ok {
		_ = c.Close()
	}
}

// provider builds the configured provider variant. display may be nil for
// variants that never prompt.
func (s *session) provider(variant auth.Variant, display auth.Display, force bool) (auth.TokenProvider, error) {
	if variant == "" {
		variant = auth.Variant(s.cfg.Provider)
	}
	return auth.NewAccessTokenProvider(
		variant,
		s.cfg.Credentials(),
		s.store,
		display,
		auth.Exchangers{},
		s.cfg.LoginConfig(force),
		auth.WithLogger(s.logger),
	)
}

// interruptible returns a context cancelled on Ctrl-C
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

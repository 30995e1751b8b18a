package cli

import (
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/fastertools/drivelink/internal/config"
	"github.com/fastertools/drivelink/internal/settings"
)

// ConfigureOptions holds the answers collected by 'auth configure'
type ConfigureOptions struct {
	ClientID          string
	ClientSecret      string
	ClientSecretsFile string
	Store             string
	SettingsPath      string
	RedisAddr         string
	NoBrowser         bool
	Interactive       bool
}

func newAuthConfigureCmd() *cobra.Command {
	opts := &ConfigureOptions{}

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure the OAuth client",
		Long: `Write the OAuth client and token store settings to the drivelink config file.

Create a "TVs and Limited Input devices" OAuth client in the Google Cloud
console, then either pass its client secrets file or enter the client ID and
secret when prompted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Interactive = opts.ClientID == "" && opts.ClientSecretsFile == "" && stdinIsTerminal()

			path, err := configurePath(cfgFile)
			if err != nil {
				return err
			}
			return runConfigure(cmd.OutOrStdout(), path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ClientID, "client-id", "", "OAuth client ID")
	cmd.Flags().StringVar(&opts.ClientSecret, "client-secret", "", "OAuth client secret")
	cmd.Flags().StringVar(&opts.ClientSecretsFile, "client-secrets-file", "", "Path to a downloaded client secrets file")
	cmd.Flags().StringVar(&opts.Store, "token-store", "", "Token store: keyring, file, memory or redis")
	cmd.Flags().StringVar(&opts.SettingsPath, "settings-path", "", "Token file path for the file store")
	cmd.Flags().StringVar(&opts.RedisAddr, "redis-addr", "", "Redis address for the redis store")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Never open a browser during login")

	return cmd
}

// configurePath returns the --config path, or the default config file location
func configurePath(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	return config.DefaultConfigPath()
}

func runConfigure(out io.Writer, path string, opts *ConfigureOptions) error {
	if opts.Interactive {
		if err := promptConfigure(opts); err != nil {
			return err
		}
	}

	file, err := buildConfigFile(opts)
	if err != nil {
		return err
	}

	if err := file.Save(path); err != nil {
		return err
	}

	fmt.Fprintln(out, successColor.Sprintf("✓ Configuration written to %s", path))
	fmt.Fprintf(out, "Run %s to authorize drivelink\n", infoColor.Sprint("drivelink auth login"))
	return nil
}

// buildConfigFile validates the answers and converts them to a config file
func buildConfigFile(opts *ConfigureOptions) (*config.File, error) {
	if opts.ClientSecretsFile != "" {
		creds, err := config.LoadClientSecrets(opts.ClientSecretsFile)
		if err != nil {
			return nil, err
		}
		if opts.ClientID == "" {
			opts.ClientID = creds.ClientID
		}
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("a client ID or client secrets file is required")
	}

	store := settings.Kind(opts.Store)
	if store == "" {
		store = settings.KindKeyring
	}
	if !validKind(store) {
		return nil, fmt.Errorf("unknown token store %q (expected one of %v)", store, settings.Kinds())
	}
	if store == settings.KindRedis && opts.RedisAddr == "" {
		return nil, fmt.Errorf("the redis token store requires --redis-addr")
	}

	file := &config.File{
		ClientID:          opts.ClientID,
		ClientSecretsFile: opts.ClientSecretsFile,
		Store:             string(store),
		NoBrowser:         opts.NoBrowser,
	}
	// The secrets file already carries the secret
	if opts.ClientSecretsFile == "" {
		file.ClientSecret = opts.ClientSecret
	}
	if store == settings.KindFile {
		file.SettingsPath = opts.SettingsPath
	}
	if store == settings.KindRedis {
		file.RedisAddr = opts.RedisAddr
	}
	return file, nil
}

func promptConfigure(opts *ConfigureOptions) error {
	idPrompt := &survey.Input{
		Message: "OAuth client ID:",
		Help:    "The client ID of a \"TVs and Limited Input devices\" OAuth client",
	}
	if err := survey.AskOne(idPrompt, &opts.ClientID, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	secretPrompt := &survey.Password{
		Message: "OAuth client secret:",
	}
	if err := survey.AskOne(secretPrompt, &opts.ClientSecret); err != nil {
		return err
	}

	kinds := settings.Kinds()
	options := make([]string, len(kinds))
	for i, k := range kinds {
		options[i] = string(k)
	}
	storePrompt := &survey.Select{
		Message: "Where should tokens be stored?",
		Options: options,
		Default: string(settings.KindKeyring),
	}
	if err := survey.AskOne(storePrompt, &opts.Store); err != nil {
		return err
	}

	if settings.Kind(opts.Store) == settings.KindRedis {
		addrPrompt := &survey.Input{
			Message: "Redis address:",
			Default: "localhost:6379",
		}
		if err := survey.AskOne(addrPrompt, &opts.RedisAddr, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}

	openBrowser := true
	browserPrompt := &survey.Confirm{
		Message: "Open a browser automatically during login?",
		Default: true,
	}
	if err := survey.AskOne(browserPrompt, &openBrowser); err != nil {
		return err
	}
	opts.NoBrowser = !openBrowser

	return nil
}

func validKind(kind settings.Kind) bool {
	for _, k := range settings.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

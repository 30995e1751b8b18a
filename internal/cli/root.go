package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fastertools/drivelink/internal/config"
)

var (
	// Version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Configuration
	cfgFile   string
	verbose   bool
	noColor   bool
	storeKind string
	cfgViper  = config.NewViper()

	// Colors
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)

	// For testing - allows redirecting output
	colorOutput io.Writer = os.Stdout
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "drivelink",
	Short: "drivelink - Google Drive authorization for headless devices",
	Long: `drivelink authorizes access to Google Drive from machines without a
browser, using the OAuth device flow. Visit the printed URL on any other
device, enter the code, and drivelink keeps the tokens fresh from then on.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version information
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./drivelink.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "token store: keyring, file, memory or redis")

	// Bind flags to viper
	_ = cfgViper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = cfgViper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
	_ = cfgViper.BindPFlag(config.KeyStore, rootCmd.PersistentFlags().Lookup("store"))

	// Add commands
	rootCmd.AddCommand(
		newAuthCmd(),
		newAboutCmd(),
	)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	used, err := config.ReadInConfig(cfgViper, cfgFile)
	if err != nil {
		Warn("%v", err)
		return
	}
	if used != "" && verbose {
		fmt.Fprintln(os.Stderr, infoColor.Sprint("Using config file:"), used)
	}
}

// loadConfig resolves the configuration for a command
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgViper)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns the diagnostic logger handed to the auth providers.
// Only errors are shown unless --verbose is set.
func newLogger() zerolog.Logger {
	level := zerolog.ErrorLevel
	if IsVerbose() {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: color.NoColor, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Helper functions for consistent output

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Fprintln(colorOutput, successColor.Sprintf("✓ "+format, args...))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, errorColor.Sprintf("✗ "+format, args...))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Fprintln(colorOutput, infoColor.Sprintf("ℹ "+format, args...))
}

// Warn prints a warning message
func Warn(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, warnColor.Sprintf("⚠ "+format, args...))
}

// Debug prints a debug message if verbose mode is enabled
func Debug(format string, args ...interface{}) {
	if IsVerbose() {
		fmt.Fprintln(os.Stderr, color.New(color.FgMagenta).Sprintf("» "+format, args...))
	}
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return cfgViper.GetBool("verbose")
}

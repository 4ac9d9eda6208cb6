// Package cli defines the humidistat command line.
package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshp123/humidistat/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	envConfig     = "HUMIDISTAT_CONFIG"
	envAPIKeyFile = "HUMIDISTAT_API_KEY_FILE"
	envLogFile    = "HUMIDISTAT_LOG_FILE"
	envLogLevel   = "HUMIDISTAT_LOG_LEVEL"
)

var flags Options

var rootCmd = &cobra.Command{
	Use:   "humidistat",
	Short: "Switch a Govee plug on when the room gets humid",
	Long: `humidistat polls a Govee hygrometer every check interval and turns a
Govee smart plug on while relative humidity is above 45% and off otherwise.

Files default to the directory of the executable:
  devices.config     sensor and plug identifiers (INI)
  api_key.secret     Govee API key
  request_logs.log   append-only operational log`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Run(ctx, resolveOptions(flags, os.Getenv, executableDir()))
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("humidistat version {{.Version}}\n")

	rootCmd.Flags().StringVarP(&flags.ConfigPath, "config", "c", "", "device config file (env "+envConfig+")")
	rootCmd.Flags().StringVar(&flags.APIKeyPath, "api-key-file", "", "file holding the Govee API key (env "+envAPIKeyFile+")")
	rootCmd.Flags().StringVar(&flags.LogPath, "log-file", "", "log file (env "+envLogFile+")")
	rootCmd.Flags().StringVar(&flags.LogLevel, "log-level", "", "debug, info, warn or error (env "+envLogLevel+")")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// resolveOptions fills unset flags from the environment, then from default
// file names inside baseDir.
func resolveOptions(in Options, getenv func(string) string, baseDir string) Options {
	pick := func(flagValue, envKey, fallback string) string {
		if flagValue != "" {
			return flagValue
		}
		if v := getenv(envKey); v != "" {
			return v
		}
		if fallback == "" {
			return ""
		}
		return filepath.Join(baseDir, fallback)
	}

	out := Options{
		ConfigPath: pick(in.ConfigPath, envConfig, config.DefaultConfigFile),
		APIKeyPath: pick(in.APIKeyPath, envAPIKeyFile, config.DefaultAPIKeyFile),
		LogPath:    pick(in.LogPath, envLogFile, config.DefaultLogFile),
		LogLevel:   in.LogLevel,
	}
	if out.LogLevel == "" {
		out.LogLevel = getenv(envLogLevel)
	}
	return out
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

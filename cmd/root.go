package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/logger"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aasprobe",
	Short: "Probe Android auth for registered clients and their scopes",
	Long: `aasprobe - Android Auth Client Prober

Sends synthetic authorization requests to the Android auth endpoint to find
which package/signature pairs are registered OAuth clients, and which scopes
each registered client may request.

COMMANDS:
  aasprobe discover                 - Probe packages x signatures, mint tokens
  aasprobe scopes <scope>...        - Probe scopes for previously discovered clients
  aasprobe token <package> <sig>    - Print the attestation token for one identity
  aasprobe access-token <scope>     - Exchange the refresh token for an access token

ENVIRONMENT:
  ANDROID_REFRESH_TOKEN   credential sent with every probe (required)
  WORKER_COUNT            number of concurrent workers (default 50)
  AASPROBE_*              any configuration key, e.g. AASPROBE_PROBE_ENDPOINT`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			// Sync errors on stdout/stderr are expected on Linux
			if err := log.Sync(); err != nil && !strings.Contains(err.Error(), "invalid argument") {
				fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", err)
			}
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaults := config.Default()

	// Logging configuration
	rootCmd.PersistentFlags().String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", defaults.Logger.Format, "log format (json, console)")
	viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logger.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindEnv("logger.level", "AASPROBE_LOG_LEVEL")
	viper.BindEnv("logger.format", "AASPROBE_LOG_FORMAT")

	// Worker configuration
	rootCmd.PersistentFlags().Int("workers", defaults.Worker.Count, "Number of concurrent workers")
	rootCmd.PersistentFlags().Int("queue-size", 0, "Task queue capacity (0 = 2x workers)")
	viper.BindPFlag("worker.count", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("worker.queue_size", rootCmd.PersistentFlags().Lookup("queue-size"))
	viper.BindEnv("worker.count", "AASPROBE_WORKER_COUNT", "WORKER_COUNT")

	// Probe configuration
	rootCmd.PersistentFlags().String("endpoint", defaults.Probe.Endpoint, "Authorization endpoint")
	rootCmd.PersistentFlags().Int("max-attempts", defaults.Probe.MaxAttempts, "Attempts per probe on transport failure (1-10)")
	rootCmd.PersistentFlags().Duration("retry-delay", defaults.Probe.RetryDelay, "Delay between attempts")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-request timeout (0 = transport default)")
	viper.BindPFlag("probe.endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("probe.max_attempts", rootCmd.PersistentFlags().Lookup("max-attempts"))
	viper.BindPFlag("probe.retry_delay", rootCmd.PersistentFlags().Lookup("retry-delay"))
	viper.BindPFlag("probe.timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	// Rate limiting
	rootCmd.PersistentFlags().Float64("rate-limit", 0, "Requests per second across all workers (0 = unlimited)")
	rootCmd.PersistentFlags().Int("rate-burst", 1, "Rate limit burst size")
	viper.BindPFlag("rate_limit.requests_per_second", rootCmd.PersistentFlags().Lookup("rate-limit"))
	viper.BindPFlag("rate_limit.burst_size", rootCmd.PersistentFlags().Lookup("rate-burst"))

	// Output
	rootCmd.PersistentFlags().String("format", defaults.Output.Format, "Output format (json, yaml)")
	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("format"))

	// Credential (environment variables only, never flags)
	viper.BindEnv("credential", "ANDROID_REFRESH_TOKEN", "AASPROBE_CREDENTIAL")

	viper.SetDefault("logger.output_paths", defaults.Logger.OutputPaths)
	viper.SetDefault("probe.user_agent", defaults.Probe.UserAgent)
	viper.SetDefault("probe.discovery_scope", defaults.Probe.DiscoveryScope)
	viper.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	viper.SetDefault("telemetry.service_name", defaults.Telemetry.ServiceName)
	viper.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	viper.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)
}

func initConfig() error {
	// No config files - flags + env vars only
	viper.SetEnvPrefix("AASPROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	defaults := config.Default()
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = defaults.Logger.Level
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = defaults.Logger.Format
	}
	if cfg.Probe.UserAgent == "" {
		cfg.Probe.UserAgent = defaults.Probe.UserAgent
	}
	if cfg.Probe.DiscoveryScope == "" {
		cfg.Probe.DiscoveryScope = defaults.Probe.DiscoveryScope
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = defaults.Output.Format
	}
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hookline/stagezero/pkg/config"
)

var (
	manifestPath string
	outputFormat string
	logLevel     string
	logJSON      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stagezero",
	Short: "Container lifecycle supervisor",
	Long: `stagezero is a PID-1 lifecycle supervisor. It provisions the container
environment, installs trust material, builds the service binary and then
replaces its own process image with it, so the service inherits PID 1 and
the container runtime's signal channel.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "launch manifest file (default is built-in pinned manifest)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}

// initConfig reads environment variables that match the flags.
func initConfig() {
	viper.SetEnvPrefix("STAGEZERO")
	viper.AutomaticEnv()

	viper.BindEnv("manifest", "STAGEZERO_MANIFEST")
	viper.BindEnv("log_level", "STAGEZERO_LOG_LEVEL")

	if manifestPath == "" {
		manifestPath = viper.GetString("manifest")
	}
	if logLevel == "" {
		logLevel = viper.GetString("log_level")
	}
}

// loadManifest resolves the launch manifest: the --manifest flag (or the
// STAGEZERO_MANIFEST environment variable) wins; without one the pinned
// defaults apply. Log flags override the manifest.
func loadManifest() (config.Config, error) {
	cfg := config.Default()
	if manifestPath != "" {
		loaded, err := config.Load(manifestPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logJSON {
		cfg.LogJSON = true
	}
	return cfg, nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// IsYAMLOutput returns true if YAML output is requested
func IsYAMLOutput() bool {
	return outputFormat == "yaml"
}

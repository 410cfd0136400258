package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kayz/scribe/internal/config"
	"github.com/kayz/scribe/internal/logger"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Fill document templates by interviewing users over chat",
	Long: `scribe asks users questions over Telegram, Discord or the web until every
placeholder of a document template is known, then renders the document.

Commands:
  scribe serve       Run the bots and the web server
  scribe render      Fill a template from a data file or an interactive interview
  scribe templates   List installed templates
  scribe check       Validate the schema and every template`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: .scribe.yaml next to the executable)")
}

// loadConfig reads --config, or the default config file.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// applyConfigLogging lets the config file set the level when --log was not
// given, and opens the log file.
func applyConfigLogging(cmd *cobra.Command, cfg *config.Config) func() {
	if !cmd.Flags().Changed("log") && cfg.Logging.Level != "" {
		if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	if cfg.Logging.File == "" {
		return func() {}
	}
	f, err := logger.OpenFile(cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		return func() {}
	}
	return func() { _ = f.Close() }
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package cli defines the cobra commands of the medichat binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medichat/internal/config"
	"medichat/internal/logger"
)

var (
	cfgPath  string
	logLevel string
	version  = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "medichat",
	Short: "Medical assistant chat client and answer service",
	Long: `medichat is a chat client that exchanges messages with a medical
question-answering service and keeps the conversation in a table store.

It also ships the answer service itself and a transcript viewer.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("MEDICHAT_CONFIG"), "path to the JSON config file (default config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the config and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

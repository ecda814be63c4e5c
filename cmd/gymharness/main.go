// Command gymharness runs game processes as reinforcement-learning
// environments.
package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bhandras/gymharness/internal/config"
	"github.com/bhandras/gymharness/internal/version"
	"github.com/bhandras/gymharness/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gymharness",
		Short:         "Run game processes as controllable RL environments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newRunCommand(),
		newSpeedCommand(),
		newCursorsCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.RichVersion())
			},
		},
	)
	return rootCmd
}

// loadConfig reads .env files, then the environment, and applies the log
// level.
func loadConfig() (*config.Config, error) {
	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		level = logger.LevelDebug
	}
	logger.SetLevel(level)
	return cfg, nil
}

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhandras/gymharness/internal/config"
	"github.com/bhandras/gymharness/internal/input"
	"github.com/bhandras/gymharness/pkg/logger"
)

// newCursorsCommand creates the virtual pointers and holds them until
// interrupted, for environments driven from another process.
func newCursorsCommand() *cobra.Command {
	var instances int
	cmd := &cobra.Command{
		Use:   "cursors",
		Short: "Create virtual pointers and keep them until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if instances > 0 {
				cfg.Instances = instances
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			router, err := openRouter(cfg, 0)
			if err != nil {
				return err
			}
			defer closeRouter(router)

			logger.Infof("created %d virtual pointers, waiting for interrupt", router.Len())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVarP(&instances, "instances", "n", 0, "number of pointers (default GYMHARNESS_INSTANCES)")
	return cmd
}

// openRouter creates one virtual pointer per configured instance.
func openRouter(cfg *config.Config, keyDelay time.Duration) (*input.Router, error) {
	backend, err := input.NewXBackend(input.XBackendConfig{
		Display:    cfg.Display,
		UinputPath: cfg.UinputPath,
		Width:      cfg.DisplayWidth,
		Height:     cfg.DisplayHeight,
	})
	if err != nil {
		return nil, err
	}
	return input.NewFactory(backend, input.WithKeyDelay(keyDelay)).PreInit(cfg.Instances)
}

func closeRouter(r *input.Router) {
	if err := r.Close(); err != nil {
		logger.Warnf("failed to remove virtual pointers: %v", err)
	}
}

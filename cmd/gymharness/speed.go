package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bhandras/gymharness/internal/timecontrol"
)

func newSpeedCommand() *cobra.Command {
	var instance int
	cmd := &cobra.Command{
		Use:   "speed <multiplier>",
		Short: "Write the time-control multiplier for an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			multiplier, err := strconv.ParseFloat(args[0], 32)
			if err != nil {
				return fmt.Errorf("invalid multiplier %q: %w", args[0], err)
			}

			w := timecontrol.NewWriter(cfg.TimeControlDir)
			if err := w.SetSpeed(float32(multiplier), instance); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", w.Path(instance), float32(multiplier))
			return nil
		},
	}
	cmd.Flags().IntVarP(&instance, "instance", "i", 0, "instance id")
	return cmd
}

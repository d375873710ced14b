package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/station"
)

func newCalibrateCommand() *cobra.Command {
	var forceFull bool
	c := &cobra.Command{
		Use:   "calibrate",
		Short: "Home both axes and persist the measured travel.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer debug.Sync()
			// Only homing persists anything.
			cfg.Defaults.SkipCalibration = false

			st, err := station.New(cfg, station.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			res, err := st.Calibrate(ctx, forceFull)
			if err != nil {
				debug.Error(err)
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s calibration: pan %d steps [%d, %d], tilt %d steps [%d, %d]\n",
				res.Mode,
				res.Pan.TotalSteps, res.Pan.MinStep, res.Pan.MaxStep,
				res.Tilt.TotalSteps, res.Tilt.MinStep, res.Tilt.MaxStep)
			return nil
		},
	}
	c.Flags().BoolVar(&forceFull, "force-full", false, "sweep both switches even when a calibration is stored")
	return c
}

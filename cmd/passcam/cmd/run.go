package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/station"
	"github.com/cjeanneret/passcam/internal/web"
)

// defaultWebAddr is used when --web is given without a value.
const defaultWebAddr = ":8080"

func newRunCommand() *cobra.Command {
	var (
		skipCalibration bool
		webAddr         string
	)
	c := &cobra.Command{
		Use:   "run",
		Short: "Calibrate, then photograph every pass in the schedule.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer debug.Sync()
			if skipCalibration {
				cfg.Defaults.SkipCalibration = true
			}
			if webAddr != "" {
				cfg.Web.Addr = webAddr
			}

			st, err := station.New(cfg, station.Options{Registerer: prometheus.DefaultRegisterer})
			if err != nil {
				debug.Error(err)
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					debug.Errorf("closing station: %v", err)
				}
			}()
			return runStation(ctx, st)
		},
	}
	c.Flags().BoolVar(&skipCalibration, "skip-calibration", false, "install fixed travel limits instead of homing")
	c.Flags().StringVar(&webAddr, "web", "", "serve the status page on this address (--web alone uses "+defaultWebAddr+")")
	c.Flags().Lookup("web").NoOptDefVal = defaultWebAddr
	return c
}

// runStation runs the session, with the status server alongside when one
// is configured. The server stops when the session ends.
func runStation(ctx context.Context, st *station.Station) error {
	srv, err := st.StatusServer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if srv != nil {
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(st.Broadcaster)))
		defer debug.SetOutput(os.Stdout)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		_, err := st.Run(gctx)
		return err
	})
	return g.Wait()
}

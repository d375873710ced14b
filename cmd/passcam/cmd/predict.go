package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/passcam/internal/predict"
)

type predictFlags struct {
	tle          string
	lat, lon     float64
	alt          float64
	from         string
	hours        float64
	minElevation float64
	step         time.Duration
	out          string
}

func newPredictCommand() *cobra.Command {
	var f predictFlags
	c := &cobra.Command{
		Use:   "predict",
		Short: "Write a pass schedule from TLE element sets.",
		Long: `predict propagates every element set in the TLE file over the window and
writes one schedule row per pass culminating above --min-elevation. The
output is the CSV format read by the run command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd.OutOrStdout(), f, time.Now())
		},
	}
	c.Flags().StringVar(&f.tle, "tle", "", "TLE file (two- or three-line sets)")
	c.Flags().Float64Var(&f.lat, "lat", 0, "site latitude in degrees, north positive")
	c.Flags().Float64Var(&f.lon, "lon", 0, "site longitude in degrees, east positive")
	c.Flags().Float64Var(&f.alt, "alt", 0, "site altitude in metres")
	c.Flags().StringVar(&f.from, "from", "", "window start, RFC 3339 (default now)")
	c.Flags().Float64Var(&f.hours, "hours", predict.DefaultWindow.Hours(), "window length in hours")
	c.Flags().Float64Var(&f.minElevation, "min-elevation", 10, "lowest culmination elevation to keep, degrees")
	c.Flags().DurationVar(&f.step, "step", predict.DefaultStep, "propagation sampling step")
	c.Flags().StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	_ = c.MarkFlagRequired("tle")
	return c
}

func runPredict(stdout io.Writer, f predictFlags, now time.Time) error {
	if f.lat < -90 || f.lat > 90 || f.lon < -180 || f.lon > 180 {
		return fmt.Errorf("site %g,%g is outside latitude/longitude range", f.lat, f.lon)
	}
	if f.hours <= 0 {
		return fmt.Errorf("--hours must be > 0, got %g", f.hours)
	}
	from := now
	if f.from != "" {
		t, err := time.Parse(time.RFC3339, f.from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		from = t
	}

	tles, err := predict.LoadTLE(f.tle)
	if err != nil {
		return err
	}
	passes, err := predict.Passes(tles, predict.Site{LatitudeDeg: f.lat, LongitudeDeg: f.lon, AltitudeM: f.alt}, predict.Options{
		From:            from,
		Window:          time.Duration(f.hours * float64(time.Hour)),
		Step:            f.step,
		MinElevationDeg: f.minElevation,
	})
	if err != nil {
		return err
	}

	if f.out == "" {
		return predict.WriteSchedule(stdout, passes)
	}
	out, err := os.Create(f.out)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	if err := predict.WriteSchedule(out, passes); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

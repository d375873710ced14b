package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass outcome and capture result label values.
const (
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeExpired = "expired"

	ResultOK    = "ok"
	ResultFault = "fault"
)

// StationCollector bundles the Prometheus metrics of a running station. It
// satisfies stepper.Recorder and motion.SlewObserver so the hardware layer
// can feed it directly.
type StationCollector struct {
	gatherer prometheus.Gatherer

	Passes        *prometheus.CounterVec
	Captures      *prometheus.CounterVec
	Recoveries    *prometheus.CounterVec
	Steps         *prometheus.CounterVec
	Position      *prometheus.GaugeVec
	SlewDurations prometheus.Histogram
}

// NewStationCollector registers station metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewStationCollector(reg prometheus.Registerer) (*StationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	passes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passcam_passes_total",
		Help: "Scheduled passes processed, labeled by outcome.",
	}, []string{"outcome"}), "passcam_passes_total")
	if err != nil {
		return nil, err
	}

	captures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passcam_captures_total",
		Help: "Capture attempts, labeled by result.",
	}, []string{"result"}), "passcam_captures_total")
	if err != nil {
		return nil, err
	}

	recoveries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passcam_limit_recoveries_total",
		Help: "Limit switch trips followed by a recovery move, per axis.",
	}, []string{"axis"}), "passcam_limit_recoveries_total")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passcam_steps_total",
		Help: "Step pulses emitted, per axis.",
	}, []string{"axis"}), "passcam_steps_total")
	if err != nil {
		return nil, err
	}

	position, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "passcam_axis_position_steps",
		Help: "Last known axis position in microsteps.",
	}, []string{"axis"}), "passcam_axis_position_steps")
	if err != nil {
		return nil, err
	}

	slews, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "passcam_slew_duration_seconds",
		Help:    "Wall time of a dual-axis slew, start gate to join.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}), "passcam_slew_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &StationCollector{
		gatherer:      gatherer,
		Passes:        passes,
		Captures:      captures,
		Recoveries:    recoveries,
		Steps:         steps,
		Position:      position,
		SlewDurations: slews,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *StationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *StationCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordMove counts emitted steps and updates the axis position gauge.
func (c *StationCollector) RecordMove(axis string, emitted, position int) {
	if c == nil {
		return
	}
	if emitted > 0 {
		c.Steps.WithLabelValues(axis).Add(float64(emitted))
	}
	c.Position.WithLabelValues(axis).Set(float64(position))
}

// RecordRecovery counts a limit switch recovery on axis.
func (c *StationCollector) RecordRecovery(axis string) {
	if c == nil {
		return
	}
	c.Recoveries.WithLabelValues(axis).Inc()
}

// ObserveSlew records the duration of one dual-axis slew.
func (c *StationCollector) ObserveSlew(d time.Duration) {
	if c == nil {
		return
	}
	c.SlewDurations.Observe(d.Seconds())
}

// RecordPass counts a pass outcome.
func (c *StationCollector) RecordPass(outcome string) {
	if c == nil {
		return
	}
	c.Passes.WithLabelValues(outcome).Inc()
}

// RecordCapture counts a capture attempt, failed when err is non-nil.
func (c *StationCollector) RecordCapture(err error) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFault
	}
	c.Captures.WithLabelValues(result).Inc()
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, fmt.Errorf("%s already registered with unexpected type %T", name, are.ExistingCollector)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				return nil, fmt.Errorf("%s already registered with unexpected type %T", name, are.ExistingCollector)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(prometheus.Histogram)
			if !ok {
				return nil, fmt.Errorf("%s already registered with unexpected type %T", name, are.ExistingCollector)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return h, nil
}

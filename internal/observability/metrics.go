package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/rdsim/internal/simulation"
)

// SchedulerCollector exposes scheduler metrics. It observes accepted epochs
// as a simulation.Observer.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	Epochs           prometheus.Counter
	Recalculations   prometheus.Counter
	EpochFailures    prometheus.Counter
	StepSize         prometheus.Gauge
	SimulatedTime    prometheus.Gauge
	LocalError       prometheus.Histogram
	AttemptsPerEpoch prometheus.Histogram
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	epochs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rdsim_epochs_total",
		Help: "Number of accepted epochs.",
	}), "rdsim_epochs_total")
	if err != nil {
		return nil, err
	}

	recalcs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rdsim_recalculations_total",
		Help: "Number of granted step shrinks across all epochs.",
	}), "rdsim_recalculations_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rdsim_epoch_failures_total",
		Help: "Number of epochs aborted with an error.",
	}), "rdsim_epoch_failures_total")
	if err != nil {
		return nil, err
	}

	step, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rdsim_step_size",
		Help: "Step to be used by the next epoch.",
	}), "rdsim_step_size")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rdsim_simulated_time",
		Help: "Elapsed simulated time after the last accepted epoch.",
	}), "rdsim_simulated_time")
	if err != nil {
		return nil, err
	}

	localErr, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rdsim_local_error",
		Help:    "Largest local error of each accepted epoch.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}), "rdsim_local_error")
	if err != nil {
		return nil, err
	}

	attempts, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rdsim_epoch_attempts",
		Help:    "Attempts needed per accepted epoch.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	}), "rdsim_epoch_attempts")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:         gatherer,
		Epochs:           epochs,
		Recalculations:   recalcs,
		EpochFailures:    failures,
		StepSize:         step,
		SimulatedTime:    simTime,
		LocalError:       localErr,
		AttemptsPerEpoch: attempts,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *SchedulerCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *SchedulerCollector) OnEpoch(ev simulation.EpochEvent) {
	if c == nil {
		return
	}
	c.Epochs.Inc()
	c.Recalculations.Add(float64(ev.Recalculations))
	c.StepSize.Set(ev.NextStep)
	c.SimulatedTime.Set(ev.Time)
	c.AttemptsPerEpoch.Observe(float64(ev.Attempts))
	if ev.LargestError.IsSet() {
		c.LocalError.Observe(ev.LargestError.Value)
	}
}

// IncFailures counts an aborted epoch.
func (c *SchedulerCollector) IncFailures() {
	if c == nil || c.EpochFailures == nil {
		return
	}
	c.EpochFailures.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

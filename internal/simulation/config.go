package simulation

import (
	"fmt"

	"go.uber.org/multierr"
)

// Config controls the adaptive step of the scheduler.
type Config struct {
	InitialStep float64
	MinStep     float64
	// MaxStep caps step growth; zero disables the cap.
	MaxStep float64
	Epsilon float64

	GrowthFactor float64
	ShrinkFactor float64
	// GrowthThreshold is the fraction of Epsilon below which an accepted
	// epoch grows the next step.
	GrowthThreshold float64
	MaxRetries      int

	// DeltaCutoff excludes full-step deltas with |value| <= cutoff from
	// error estimation. They are still committed.
	DeltaCutoff   float64
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		InitialStep:     0.01,
		MinStep:         1e-12,
		Epsilon:         0.01,
		GrowthFactor:    1.2,
		ShrinkFactor:    0.4,
		GrowthThreshold: 0.8,
		MaxRetries:      25,
		ValidateState:   true,
	}
}

func (c Config) Validate() error {
	var errs error
	if c.InitialStep <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("initial step must be positive, got %g", c.InitialStep))
	}
	if c.MinStep <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("min step must be positive, got %g", c.MinStep))
	}
	if c.InitialStep < c.MinStep {
		errs = multierr.Append(errs, fmt.Errorf("initial step %g below min step %g", c.InitialStep, c.MinStep))
	}
	if c.MaxStep != 0 && c.MaxStep < c.InitialStep {
		errs = multierr.Append(errs, fmt.Errorf("max step %g below initial step %g", c.MaxStep, c.InitialStep))
	}
	if c.Epsilon <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("epsilon must be positive, got %g", c.Epsilon))
	}
	if c.GrowthFactor < 1 {
		errs = multierr.Append(errs, fmt.Errorf("growth factor must be >= 1, got %g", c.GrowthFactor))
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("shrink factor must be in (0, 1), got %g", c.ShrinkFactor))
	}
	if c.GrowthThreshold < 0 || c.GrowthThreshold > 1 {
		errs = multierr.Append(errs, fmt.Errorf("growth threshold must be in [0, 1], got %g", c.GrowthThreshold))
	}
	if c.MaxRetries < 1 {
		errs = multierr.Append(errs, fmt.Errorf("max retries must be positive, got %d", c.MaxRetries))
	}
	if c.DeltaCutoff < 0 {
		errs = multierr.Append(errs, fmt.Errorf("delta cutoff must be non-negative, got %g", c.DeltaCutoff))
	}
	return errs
}

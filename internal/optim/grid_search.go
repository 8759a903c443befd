// Package optim searches scheduler parameters for the cheapest accurate run.
package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/san-kum/rdsim/internal/config"
	"github.com/san-kum/rdsim/internal/experiment"
)

// Trial is one evaluated parameter combination.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// GridSearch evaluates every combination of the given parameter values and
// keeps the one minimizing a result metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("got %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if _, err := Apply(config.DefaultConfig(), map[string]float64{name: 0}); err != nil {
			return nil, err
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("empty range for %s", name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Search runs one experiment per combination. Failed runs are skipped and
// reported in the returned trials; the error is non-nil only when no run
// succeeded or ctx was cancelled.
func (g *GridSearch) Search(
	ctx context.Context,
	build func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Trial, error) {
	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) {
		tr := Trial{Params: params, Value: math.NaN()}
		defer func() { trials = append(trials, tr) }()

		exp, err := build(params)
		if err != nil {
			tr.Err = err
			return
		}
		result, err := exp.Run(ctx)
		if err != nil {
			tr.Err = err
			return
		}
		val, ok := result.Metrics[metricName]
		if !ok {
			tr.Err = fmt.Errorf("unknown metric: %s", metricName)
			return
		}
		tr.Value = val
		logrus.Debugf("grid search %v: %s=%.4g", params, metricName, val)
		if val < best {
			best = val
			bestParams = params
		}
	})

	if err := ctx.Err(); err != nil {
		return bestParams, best, trials, err
	}
	if bestParams == nil {
		var errs error
		for _, tr := range trials {
			errs = multierr.Append(errs, tr.Err)
		}
		return nil, best, trials, fmt.Errorf("no successful run: %w", errs)
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, eval func(map[string]float64)) {
	if ctx.Err() != nil {
		return
	}
	if depth == len(g.paramNames) {
		eval(current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(ctx, depth+1, newParams, eval)
	}
}

// Apply returns a copy of base with the named scheduler parameters set.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := *base
	for name, v := range params {
		switch name {
		case "epsilon":
			cfg.Scheduler.Epsilon = v
		case "initial_step":
			cfg.Scheduler.InitialStep = v
		case "min_step":
			cfg.Scheduler.MinStep = v
		case "max_step":
			cfg.Scheduler.MaxStep = v
		case "growth_factor":
			cfg.Scheduler.GrowthFactor = v
		case "shrink_factor":
			cfg.Scheduler.ShrinkFactor = v
		case "growth_threshold":
			cfg.Scheduler.GrowthThreshold = v
		case "delta_cutoff":
			cfg.Scheduler.DeltaCutoff = v
		case "max_retries":
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("max_retries must be an integer, got %g", v)
			}
			cfg.Scheduler.MaxRetries = int(v)
		default:
			return nil, fmt.Errorf("unknown scheduler parameter: %s", name)
		}
	}
	return &cfg, nil
}

package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/config"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/kinetics"
	"github.com/san-kum/rdsim/internal/metrics"
	"github.com/san-kum/rdsim/internal/simulation"
)

// Result summarizes a finished or aborted run.
type Result struct {
	Epochs      int64
	ElapsedTime float64
	FinalStep   float64
	Totals      map[chem.EntityID]float64
	Metrics     map[string]float64
	Wall        time.Duration
}

type Experiment struct {
	cfg      *config.Config
	grid     *graph.Grid
	entities *chem.Table
	sim      *simulation.Simulation
	metrics  *metrics.Set
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup builds grid, entity table, initial field and modules. The setup is
// checked for missing features before it is returned.
func (e *Experiment) Setup(reg *Registry) error {
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	grid, err := graph.NewGrid(e.cfg.Grid.Cols, e.cfg.Grid.Rows, e.cfg.Grid.Spacing)
	if err != nil {
		return err
	}
	entities, err := e.cfg.EntityTable()
	if err != nil {
		return err
	}

	for _, in := range e.cfg.Initial {
		id := chem.EntityID(in.Entity)
		for _, n := range grid.Nodes() {
			n.Concentrations().Set(chem.Inner, id, in.Baseline)
		}
		for _, sp := range in.Spikes {
			grid.At(sp.Col, sp.Row).Concentrations().Add(chem.Inner, id, sp.Value)
		}
	}

	s, err := simulation.New(e.cfg.Scheduler.Simulation(), entities, kinetics.Nodes(grid)...)
	if err != nil {
		return err
	}
	for _, mc := range e.cfg.Modules {
		m, err := reg.Build(mc.Kind, grid, entities, mc.Entities)
		if err != nil {
			return err
		}
		if err := s.AddModule(m); err != nil {
			return err
		}
	}
	if err := s.CheckFeatures(); err != nil {
		return err
	}

	e.metrics = metrics.NewSet(metrics.Defaults(entities.IDs())...)
	s.AddObserver(e.metrics)

	e.grid, e.entities, e.sim = grid, entities, s
	logrus.Debugf("experiment %s: %dx%d grid, %d entities, %d modules",
		e.cfg.Name, grid.Cols, grid.Rows, len(entities.IDs()), len(s.Modules()))
	return nil
}

// Run advances for the configured duration, or the configured number of
// epochs when no duration is set.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.sim == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	start := time.Now()
	var err error
	if e.cfg.Duration > 0 {
		err = e.sim.RunUntil(ctx, e.cfg.Duration)
	} else {
		err = e.sim.Run(ctx, e.cfg.Epochs)
	}
	res := e.result(time.Since(start))
	if err != nil {
		logrus.Warnf("experiment %s stopped after %d epochs: %v", e.cfg.Name, res.Epochs, err)
		return res, err
	}
	logrus.Infof("experiment %s finished: %d epochs, t=%.4g", e.cfg.Name, res.Epochs, res.ElapsedTime)
	return res, nil
}

func (e *Experiment) result(wall time.Duration) *Result {
	totals := make(map[chem.EntityID]float64)
	for _, id := range e.entities.IDs() {
		for _, n := range e.grid.Nodes() {
			totals[id] += n.Concentrations().Total(id)
		}
	}
	return &Result{
		Epochs:      e.sim.Epoch(),
		ElapsedTime: e.sim.ElapsedTime(),
		FinalStep:   e.sim.TimeStep(),
		Totals:      totals,
		Metrics:     e.metrics.Values(),
		Wall:        wall,
	}
}

// AddMetric records m for every accepted epoch. It must be called after
// Setup.
func (e *Experiment) AddMetric(m metrics.Metric) {
	e.metrics.Add(m)
}

func (e *Experiment) Config() *config.Config             { return e.cfg }
func (e *Experiment) Grid() *graph.Grid                  { return e.grid }
func (e *Experiment) Entities() *chem.Table              { return e.entities }
func (e *Experiment) Simulation() *simulation.Simulation { return e.sim }

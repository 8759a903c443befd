package config

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/simulation"
)

const (
	DefaultCols        = 16
	DefaultRows        = 16
	DefaultSpacing     = 1.0
	DefaultEpochs      = 200
	DefaultRecordEvery = 10
	DefaultDeltaCutoff = 1e-12
)

type Config struct {
	Name        string          `yaml:"name"`
	Grid        GridConfig      `yaml:"grid"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Entities    []EntityConfig  `yaml:"entities"`
	Initial     []InitialConfig `yaml:"initial"`
	Modules     []ModuleConfig  `yaml:"modules"`
	Epochs      int             `yaml:"epochs"`
	Duration    float64         `yaml:"duration,omitempty"`
	RecordEvery int             `yaml:"record_every"`
}

type GridConfig struct {
	Cols    int     `yaml:"cols"`
	Rows    int     `yaml:"rows"`
	Spacing float64 `yaml:"spacing"`
}

type SchedulerConfig struct {
	InitialStep     float64 `yaml:"initial_step"`
	MinStep         float64 `yaml:"min_step"`
	MaxStep         float64 `yaml:"max_step,omitempty"`
	Epsilon         float64 `yaml:"epsilon"`
	GrowthFactor    float64 `yaml:"growth_factor"`
	ShrinkFactor    float64 `yaml:"shrink_factor"`
	GrowthThreshold float64 `yaml:"growth_threshold"`
	MaxRetries      int     `yaml:"max_retries"`
	DeltaCutoff     float64 `yaml:"delta_cutoff"`
	ValidateState   bool    `yaml:"validate_state"`
}

type EntityConfig struct {
	ID       string             `yaml:"id"`
	Features map[string]float64 `yaml:"features,omitempty"`
}

// InitialConfig sets a uniform baseline for one entity plus optional spikes
// added on top of it.
type InitialConfig struct {
	Entity   string        `yaml:"entity"`
	Baseline float64       `yaml:"baseline"`
	Spikes   []SpikeConfig `yaml:"spikes,omitempty"`
}

type SpikeConfig struct {
	Col   int     `yaml:"col"`
	Row   int     `yaml:"row"`
	Value float64 `yaml:"value"`
}

// ModuleConfig names a process kind and the entities it acts on, in the
// order the kind expects.
type ModuleConfig struct {
	Kind     string   `yaml:"kind"`
	Entities []string `yaml:"entities"`
}

func DefaultScheduler() SchedulerConfig {
	d := simulation.DefaultConfig()
	return SchedulerConfig{
		InitialStep:     d.InitialStep,
		MinStep:         d.MinStep,
		MaxStep:         d.MaxStep,
		Epsilon:         d.Epsilon,
		GrowthFactor:    d.GrowthFactor,
		ShrinkFactor:    d.ShrinkFactor,
		GrowthThreshold: d.GrowthThreshold,
		MaxRetries:      d.MaxRetries,
		DeltaCutoff:     DefaultDeltaCutoff,
		ValidateState:   d.ValidateState,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Name:      "spot",
		Grid:      GridConfig{Cols: DefaultCols, Rows: DefaultRows, Spacing: DefaultSpacing},
		Scheduler: DefaultScheduler(),
		Entities: []EntityConfig{
			{ID: "A", Features: map[string]float64{"diffusivity": 0.1}},
		},
		Initial: []InitialConfig{
			{Entity: "A", Baseline: 1, Spikes: []SpikeConfig{{Col: DefaultCols / 2, Row: DefaultRows / 2, Value: 4}}},
		},
		Modules:     []ModuleConfig{{Kind: "diffusion", Entities: []string{"A"}}},
		Epochs:      DefaultEpochs,
		RecordEvery: DefaultRecordEvery,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// lists replace the defaults instead of merging into them
	cfg.Entities, cfg.Initial, cfg.Modules = nil, nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s SchedulerConfig) Simulation() simulation.Config {
	return simulation.Config{
		InitialStep:     s.InitialStep,
		MinStep:         s.MinStep,
		MaxStep:         s.MaxStep,
		Epsilon:         s.Epsilon,
		GrowthFactor:    s.GrowthFactor,
		ShrinkFactor:    s.ShrinkFactor,
		GrowthThreshold: s.GrowthThreshold,
		MaxRetries:      s.MaxRetries,
		DeltaCutoff:     s.DeltaCutoff,
		ValidateState:   s.ValidateState,
	}
}

// EntityTable builds the entity table, failing on unknown feature names.
func (c *Config) EntityTable() (*chem.Table, error) {
	t := chem.NewTable()
	for _, ec := range c.Entities {
		e := chem.NewEntity(chem.EntityID(ec.ID))
		for name, v := range ec.Features {
			f, err := chem.ParseFeature(name)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", ec.ID, err)
			}
			e.With(f, v)
		}
		t.Add(e)
	}
	return t, nil
}

// Validate checks structure and references. Module kinds are resolved by
// the experiment registry.
func (c *Config) Validate() error {
	var errs error
	if c.Grid.Cols < 1 || c.Grid.Rows < 1 {
		errs = multierr.Append(errs, fmt.Errorf("grid dimensions must be positive, got %dx%d", c.Grid.Cols, c.Grid.Rows))
	}
	if c.Grid.Spacing <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("grid spacing must be positive, got %g", c.Grid.Spacing))
	}
	errs = multierr.Append(errs, c.Scheduler.Simulation().Validate())

	known := make(map[string]bool, len(c.Entities))
	for _, e := range c.Entities {
		if e.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("entity without id"))
			continue
		}
		if known[e.ID] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate entity: %s", e.ID))
		}
		known[e.ID] = true
		for name := range e.Features {
			if _, err := chem.ParseFeature(name); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("entity %s: %w", e.ID, err))
			}
		}
	}

	for _, in := range c.Initial {
		if !known[in.Entity] {
			errs = multierr.Append(errs, fmt.Errorf("initial concentration for unknown entity: %s", in.Entity))
		}
		for _, sp := range in.Spikes {
			if sp.Col < 0 || sp.Col >= c.Grid.Cols || sp.Row < 0 || sp.Row >= c.Grid.Rows {
				errs = multierr.Append(errs, fmt.Errorf("spike of %s at (%d,%d) outside the grid", in.Entity, sp.Col, sp.Row))
			}
		}
	}

	if len(c.Modules) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("no modules configured"))
	}
	for i, m := range c.Modules {
		if m.Kind == "" {
			errs = multierr.Append(errs, fmt.Errorf("module %d has no kind", i))
		}
		for _, id := range m.Entities {
			if !known[id] {
				errs = multierr.Append(errs, fmt.Errorf("module %d (%s) references unknown entity: %s", i, m.Kind, id))
			}
		}
	}

	if c.Epochs < 0 {
		errs = multierr.Append(errs, fmt.Errorf("epochs must be non-negative, got %d", c.Epochs))
	}
	if c.Epochs == 0 && c.Duration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("either epochs or duration must be set"))
	}
	if c.RecordEvery < 1 {
		errs = multierr.Append(errs, fmt.Errorf("record_every must be positive, got %d", c.RecordEvery))
	}
	return errs
}

package simulation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/san-kum/rdsim/internal/chem"
)

// Simulation owns the spatial nodes, the module registry, the scheduler and
// the elapsed time.
type Simulation struct {
	mu        sync.RWMutex
	time      float64
	nodes     []Updatable
	nodeIndex map[string]Updatable
	initial   map[string]*chem.Container

	entities  *chem.Table
	modules   []*UpdateModule
	moduleIdx map[string]*UpdateModule
	scheduler *UpdateScheduler
	observers []Observer
	validated bool
}

func New(cfg Config, entities *chem.Table, nodes ...Updatable) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if entities == nil {
		entities = chem.NewTable()
	}

	s := &Simulation{
		nodeIndex: make(map[string]Updatable, len(nodes)),
		entities:  entities,
		moduleIdx: make(map[string]*UpdateModule),
	}
	for _, n := range nodes {
		if _, dup := s.nodeIndex[n.ID()]; dup {
			return nil, fmt.Errorf("duplicate node identifier: %s", n.ID())
		}
		s.nodes = append(s.nodes, n)
		s.nodeIndex[n.ID()] = n
	}
	s.scheduler = newUpdateScheduler(s, cfg)
	return s, nil
}

func (s *Simulation) AddModule(m *UpdateModule) error {
	if _, dup := s.moduleIdx[m.ID()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, m.ID())
	}
	s.modules = append(s.modules, m)
	s.moduleIdx[m.ID()] = m
	s.scheduler.register(m)
	s.validated = false
	return nil
}

func (s *Simulation) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Simulation) Module(id string) (*UpdateModule, bool) {
	m, ok := s.moduleIdx[id]
	return m, ok
}

func (s *Simulation) Modules() []*UpdateModule    { return s.modules }
func (s *Simulation) Nodes() []Updatable          { return s.nodes }
func (s *Simulation) Entities() *chem.Table       { return s.entities }
func (s *Simulation) Scheduler() *UpdateScheduler { return s.scheduler }
func (s *Simulation) TimeStep() float64           { return s.scheduler.TimeStep() }
func (s *Simulation) Epoch() int64                { return s.scheduler.Epoch() }

func (s *Simulation) Node(id string) (Updatable, bool) {
	n, ok := s.nodeIndex[id]
	return n, ok
}

func (s *Simulation) ElapsedTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// CheckFeatures validates every module requirement against the entity table
// and returns all violations at once.
func (s *Simulation) CheckFeatures() error {
	var errs error
	for _, m := range s.modules {
		if len(m.nodes) == 0 || len(m.functions) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrEmptyModule, m.ID()))
		}
		for _, r := range m.requirements {
			e, ok := s.entities.Get(r.Entity)
			if !ok {
				errs = multierr.Append(errs, &FeatureError{Module: m.ID(), Entity: r.Entity, Feature: r.Feature, Err: ErrUnknownEntity})
				continue
			}
			if _, ok := e.Feature(r.Feature); !ok {
				errs = multierr.Append(errs, &FeatureError{Module: m.ID(), Entity: r.Entity, Feature: r.Feature, Err: ErrMissingFeature})
			}
		}
		for _, n := range m.nodes {
			if _, ok := s.nodeIndex[n.ID()]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("module %s references node %s outside the simulation", m.ID(), n.ID()))
			}
		}
	}
	return errs
}

// NextEpoch validates the setup on first use and advances by one epoch.
func (s *Simulation) NextEpoch(ctx context.Context) error {
	if !s.validated {
		if err := s.CheckFeatures(); err != nil {
			return err
		}
		s.validated = true
		if s.initial == nil {
			s.initial = s.Snapshot()
		}
	}
	return s.scheduler.NextEpoch(ctx)
}

// Run advances by the given number of epochs, checking ctx between epochs.
func (s *Simulation) Run(ctx context.Context, epochs int) error {
	for i := 0; i < epochs; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.NextEpoch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil advances until the elapsed time reaches t.
func (s *Simulation) RunUntil(ctx context.Context, t float64) error {
	for s.ElapsedTime() < t {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.NextEpoch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot deep-copies the committed containers of all nodes.
func (s *Simulation) Snapshot() map[string]*chem.Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Simulation) snapshotLocked() map[string]*chem.Container {
	out := make(map[string]*chem.Container, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID()] = n.Concentrations().Clone()
	}
	return out
}

// Reset restores the concentrations captured before the first epoch and
// rewinds time and step.
func (s *Simulation) Reset() {
	s.mu.Lock()
	if s.initial != nil {
		for _, n := range s.nodes {
			if c, ok := s.initial[n.ID()]; ok {
				restore(n.Concentrations(), c)
			}
		}
	}
	s.time = 0
	s.mu.Unlock()
	s.scheduler.reset()
}

func restore(dst, src *chem.Container) {
	for _, sub := range dst.Subsections() {
		for _, e := range dst.Entities(sub) {
			dst.Set(sub, e, 0)
		}
	}
	for _, sub := range src.Subsections() {
		for _, e := range src.Entities(sub) {
			dst.Set(sub, e, src.Get(sub, e))
		}
	}
}

func (s *Simulation) publish(ev EpochEvent) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()
	for _, o := range observers {
		o.OnEpoch(ev)
	}
}

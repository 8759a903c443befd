package simulation

import (
	"context"
	"math"
	"sync/atomic"
)

// UpdateModule computes the concentration changes of a fixed set of nodes.
// Its buffers are owned by the goroutine running it until the scheduler
// commits them.
type UpdateModule struct {
	id           string
	nodes        []Updatable
	functions    []DeltaFunction
	requirements []Requirement

	scheduler *UpdateScheduler
	state     atomic.Int32

	step      float64
	largest   LocalError
	full      *deltaBuffer
	half      *deltaBuffer
	committed bool
}

func NewUpdateModule(id string, nodes []Updatable, functions ...DeltaFunction) *UpdateModule {
	m := &UpdateModule{
		id:        id,
		nodes:     nodes,
		functions: functions,
		largest:   NoLocalError,
		full:      newDeltaBuffer(),
		half:      newDeltaBuffer(),
	}
	m.state.Store(int32(Pending))
	return m
}

// Require declares features the module reads from entities. They are checked
// by Simulation.CheckFeatures before the first epoch.
func (m *UpdateModule) Require(reqs ...Requirement) *UpdateModule {
	m.requirements = append(m.requirements, reqs...)
	return m
}

func (m *UpdateModule) ID() string                  { return m.id }
func (m *UpdateModule) Nodes() []Updatable          { return m.nodes }
func (m *UpdateModule) Requirements() []Requirement { return m.requirements }
func (m *UpdateModule) State() ModuleState          { return ModuleState(m.state.Load()) }
func (m *UpdateModule) LargestLocalError() LocalError {
	return m.largest
}

// ComputedStep is the step the current deltas were computed at, zero when
// the buffers are empty.
func (m *UpdateModule) ComputedStep() float64 { return m.step }

// Deltas returns a copy of the full-step deltas ready for commit.
func (m *UpdateModule) Deltas() []ConcentrationDelta {
	out := make([]ConcentrationDelta, 0, m.full.len())
	m.full.each(func(d ConcentrationDelta) { out = append(out, d) })
	return out
}

func (m *UpdateModule) setState(s ModuleState) {
	m.state.Store(int32(s))
}

// Reset clears deltas and error and returns the module to Pending.
func (m *UpdateModule) Reset() {
	m.full.clear()
	m.half.clear()
	m.largest = NoLocalError
	m.step = 0
	m.committed = false
	m.setState(Pending)
}

// Run is the worker entry point for one attempt. It computes at the
// scheduler's step, reports its largest error, waits until every module of
// the attempt has reported and then, while recalculation is required, asks
// the scheduler for permission to recompute at a smaller step.
func (m *UpdateModule) Run(ctx context.Context) error {
	s := m.scheduler
	if s == nil {
		return ErrNotRegistered
	}
	att := s.currentAttempt()

	m.compute(s.TimeStep(), s.cfg)
	s.report(m)
	att.reported.Arrive()
	att.reported.Wait()

	for m.State() == RequiringRecalculation {
		if !s.Interrupt(m) {
			m.setState(Interrupted)
			break
		}
		m.compute(s.TimeStep(), s.cfg)
		s.report(m)
	}
	return nil
}

func (m *UpdateModule) compute(step float64, cfg Config) {
	m.full.clear()
	m.half.clear()
	m.committed = false
	m.step = step

	for _, n := range m.nodes {
		for _, fn := range m.functions {
			for _, d := range fn(n, committedView{}) {
				d.Module = m.id
				d.Value *= step
				m.full.add(d)
			}
		}
	}

	offsets := make(map[deltaKey]float64, m.full.len())
	m.full.each(func(d ConcentrationDelta) {
		offsets[d.key()] = d.Value / 2
	})
	view := halfStepView{offsets: offsets}
	for _, n := range m.nodes {
		for _, fn := range m.functions {
			for _, d := range fn(n, view) {
				d.Module = m.id
				d.Value *= step
				m.half.add(d)
			}
		}
	}

	largest := NoLocalError
	m.full.each(func(d ConcentrationDelta) {
		if math.Abs(d.Value) <= cfg.DeltaCutoff {
			return
		}
		var half float64
		if h, ok := m.half.get(d.key()); ok {
			half = h.Value
		}
		if e := RelativeError(d.Value, half); e > largest.Value {
			largest = LocalError{Module: m.id, Node: d.Node.ID(), Entity: d.Entity, Value: e}
		}
	})
	m.largest = largest

	if largest.Value > cfg.Epsilon {
		m.setState(RequiringRecalculation)
	} else {
		m.setState(Done)
	}
}

func (m *UpdateModule) markCommitted() {
	if m.State() != Done {
		panic("simulation: commit of module " + m.id + " in state " + m.State().String())
	}
	if m.committed {
		panic("simulation: module " + m.id + " committed twice")
	}
	m.committed = true
}

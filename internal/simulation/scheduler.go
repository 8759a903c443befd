package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/san-kum/rdsim/internal/simulation"

// attempt is one concurrent pass over the active modules of an epoch.
type attempt struct {
	reported *barrier
}

// UpdateScheduler drives epochs of a Simulation. Reconciliation and commit
// run on the goroutine calling NextEpoch; modules run on their own.
type UpdateScheduler struct {
	sim     *Simulation
	cfg     Config
	modules []*UpdateModule

	committing atomic.Bool

	// mu guards the fields below. Workers reach them only through report and
	// Interrupt.
	mu       sync.Mutex
	step     float64
	epoch    int64
	largest  LocalError
	critical *UpdateModule
	retries  int
	shrunk   bool
	abort    *EpochError
	attempt  *attempt
}

func newUpdateScheduler(sim *Simulation, cfg Config) *UpdateScheduler {
	return &UpdateScheduler{
		sim:     sim,
		cfg:     cfg,
		step:    cfg.InitialStep,
		largest: NoLocalError,
	}
}

func (s *UpdateScheduler) register(m *UpdateModule) {
	m.scheduler = s
	s.modules = append(s.modules, m)
}

// TimeStep returns the current global step.
func (s *UpdateScheduler) TimeStep() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Epoch returns the number of accepted epochs.
func (s *UpdateScheduler) Epoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *UpdateScheduler) Epsilon() float64 { return s.cfg.Epsilon }

// CriticalModule returns the module holding the largest error reported in
// the current or last attempt.
func (s *UpdateScheduler) CriticalModule() (*UpdateModule, LocalError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.critical, s.largest
}

func (s *UpdateScheduler) currentAttempt() *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *UpdateScheduler) report(m *UpdateModule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := m.LargestLocalError()
	if m == s.critical || e.Value > s.largest.Value {
		s.largest = e
		s.critical = m
	}
}

// Interrupt asks for permission to shrink the step and recompute. Only the
// critical module of the attempt is granted; the step is shrunk before
// returning true. Every other caller gets false and must stand by as
// Interrupted.
func (s *UpdateScheduler) Interrupt(m *UpdateModule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.abort != nil || m != s.critical {
		return false
	}

	e := m.LargestLocalError()
	next := s.step * s.cfg.ShrinkFactor
	switch {
	case s.retries >= s.cfg.MaxRetries:
		s.abort = s.fatalLocked(ErrRetriesExhausted, e)
		return false
	case next < s.cfg.MinStep:
		s.abort = s.fatalLocked(ErrStepTooSmall, e)
		return false
	}

	logrus.Debugf("[epoch %d] %s requires recalculation: local error %s, step %.3e -> %.3e",
		s.epoch+1, m.ID(), e, s.step, next)

	s.retries++
	s.step = next
	s.shrunk = true
	return true
}

func (s *UpdateScheduler) fatalLocked(err error, e LocalError) *EpochError {
	return &EpochError{
		Epoch:      s.epoch + 1,
		Module:     e.Module,
		Node:       e.Node,
		Entity:     e.Entity,
		Step:       s.step,
		LocalError: e.Value,
		Err:        err,
	}
}

// NextEpoch runs attempts until every module is Done at the same step, then
// commits. It returns an *EpochError when the step cannot be shrunk further.
// A failed epoch leaves the step where it was before the epoch started.
func (s *UpdateScheduler) NextEpoch(ctx context.Context) (err error) {
	s.mu.Lock()
	s.retries = 0
	s.shrunk = false
	s.abort = nil
	epoch := s.epoch + 1
	startStep := s.step
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.mu.Lock()
			s.step = startStep
			s.mu.Unlock()
		}
	}()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "simulation.epoch",
		trace.WithAttributes(attribute.Int64("epoch", epoch), attribute.Int("modules", len(s.modules))))
	defer span.End()

	for _, m := range s.modules {
		m.Reset()
	}

	attempts := 0
	for {
		active := s.activeModules()
		if len(active) == 0 {
			break
		}
		attempts++
		if err := s.runAttempt(ctx, active); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		s.mu.Lock()
		abort := s.abort
		s.mu.Unlock()
		if abort != nil {
			logrus.Warnf("[epoch %d] aborting: %v", epoch, abort)
			span.RecordError(abort)
			span.SetStatus(codes.Error, abort.Error())
			return abort
		}
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("attempt", attempts),
			attribute.Float64("step", s.TimeStep()),
		))
	}

	ev, err := s.commit(epoch, attempts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.Float64("step", ev.Step),
		attribute.Float64("next_step", ev.NextStep),
		attribute.Int("attempts", ev.Attempts),
		attribute.Int("recalculations", ev.Recalculations),
	)

	s.sim.publish(ev)
	return nil
}

// activeModules resets and returns every module whose deltas are not final
// at the current step.
func (s *UpdateScheduler) activeModules() []*UpdateModule {
	step := s.TimeStep()
	active := make([]*UpdateModule, 0, len(s.modules))
	for _, m := range s.modules {
		if m.State() == Done && m.ComputedStep() == step {
			continue
		}
		m.Reset()
		active = append(active, m)
	}
	return active
}

func (s *UpdateScheduler) runAttempt(ctx context.Context, active []*UpdateModule) error {
	s.mu.Lock()
	s.largest = NoLocalError
	s.critical = nil
	s.attempt = &attempt{reported: newBarrier(len(active))}
	s.mu.Unlock()

	var g errgroup.Group
	for _, m := range active {
		g.Go(func() error {
			return m.Run(ctx)
		})
	}
	return g.Wait()
}

// commit applies the full-step deltas of every module. New values are
// staged and validated first so that a rejected commit leaves no trace.
func (s *UpdateScheduler) commit(epoch int64, attempts int) (EpochEvent, error) {
	if !s.committing.CompareAndSwap(false, true) {
		panic("simulation: commit while another commit is in flight")
	}
	defer s.committing.Store(false)

	type staged struct {
		node  Updatable
		delta ConcentrationDelta
		value float64
	}

	step := s.TimeStep()
	largest := NoLocalError
	order := make([]deltaKey, 0)
	pending := make(map[deltaKey]*staged)

	for _, m := range s.modules {
		if m.ComputedStep() != step {
			panic(fmt.Sprintf("simulation: module %s computed at step %g, committing %g", m.ID(), m.ComputedStep(), step))
		}
		m.markCommitted()
		if e := m.LargestLocalError(); e.Value > largest.Value {
			largest = e
		}
		m.full.each(func(d ConcentrationDelta) {
			k := d.key()
			p, ok := pending[k]
			if !ok {
				p = &staged{node: d.Node, delta: d, value: d.Node.Concentrations().Get(d.Subsection, d.Entity)}
				pending[k] = p
				order = append(order, k)
			}
			p.value += d.Value
		})
	}

	if largest.Value > s.cfg.Epsilon {
		panic(fmt.Sprintf("simulation: accepting epoch %d with local error %s above epsilon %g", epoch, largest, s.cfg.Epsilon))
	}

	if s.cfg.ValidateState {
		for _, k := range order {
			p := pending[k]
			if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
				return EpochEvent{}, &EpochError{
					Epoch:      epoch,
					Module:     p.delta.Module,
					Node:       k.node,
					Entity:     k.entity,
					Step:       step,
					LocalError: largest.Value,
					Err:        ErrInvalidState,
				}
			}
		}
	}

	s.mu.Lock()
	retries, shrunk := s.retries, s.shrunk
	next := step
	if !shrunk && largest.Value < s.cfg.GrowthThreshold*s.cfg.Epsilon {
		next = step * s.cfg.GrowthFactor
		if s.cfg.MaxStep > 0 && next > s.cfg.MaxStep {
			next = s.cfg.MaxStep
		}
	}
	s.mu.Unlock()

	ev := EpochEvent{
		Epoch:          epoch,
		Step:           step,
		NextStep:       next,
		LargestError:   largest,
		Attempts:       attempts,
		Recalculations: retries,
	}

	s.sim.mu.Lock()
	for _, k := range order {
		p := pending[k]
		p.node.Concentrations().Set(k.sub, k.entity, p.value)
	}
	s.sim.time += step
	ev.Time = s.sim.time
	if len(s.sim.observers) > 0 {
		ev.Snapshot = s.sim.snapshotLocked()
	}
	s.mu.Lock()
	s.epoch = epoch
	s.step = next
	s.mu.Unlock()
	s.sim.mu.Unlock()

	logrus.Debugf("[epoch %d] accepted at t=%.6g: step %.3e, largest local error %s, next step %.3e",
		epoch, ev.Time, step, largest, next)
	return ev, nil
}

func (s *UpdateScheduler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = s.cfg.InitialStep
	s.epoch = 0
	s.largest = NoLocalError
	s.critical = nil
	s.retries = 0
	s.shrunk = false
	s.abort = nil
	for _, m := range s.modules {
		m.Reset()
	}
}

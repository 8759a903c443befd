package simulation

import (
	"math"
	"sync"

	"github.com/san-kum/rdsim/internal/chem"
)

type testNode struct {
	id string
	c  *chem.Container
}

func newTestNode(id string) *testNode {
	return &testNode{id: id, c: chem.NewContainer()}
}

func (n *testNode) ID() string                      { return n.id }
func (n *testNode) Concentrations() *chem.Container { return n.c }

// profile proposes a unit rate for entity at the committed state and a rate
// at the half-step state chosen so that the module's local error equals
// errFor(dt). dt is recovered from the half-step offset.
func profile(entity chem.EntityID, errFor func(dt float64) float64) DeltaFunction {
	return func(n Updatable, v ConcentrationView) []ConcentrationDelta {
		off := v.Concentration(n, chem.Inner, entity) - n.Concentrations().Get(chem.Inner, entity)
		if off == 0 {
			return []ConcentrationDelta{NewDelta(n, chem.Inner, entity, 1)}
		}
		e := errFor(2 * off)
		if math.IsInf(e, 1) {
			return []ConcentrationDelta{NewDelta(n, chem.Inner, entity, 0)}
		}
		return []ConcentrationDelta{NewDelta(n, chem.Inner, entity, 1/(1-e))}
	}
}

func fixedError(e float64) func(float64) float64 {
	return func(float64) float64 { return e }
}

// errorAbove returns e while dt > threshold and below otherwise.
func errorAbove(threshold, e, below float64) func(float64) float64 {
	return func(dt float64) float64 {
		if dt > threshold {
			return e
		}
		return below
	}
}

// decay is first-order consumption of entity with rate constant k.
func decay(entity chem.EntityID, k float64) DeltaFunction {
	return func(n Updatable, v ConcentrationView) []ConcentrationDelta {
		c := v.Concentration(n, chem.Inner, entity)
		return []ConcentrationDelta{NewDelta(n, chem.Inner, entity, -k*c)}
	}
}

// convert moves from -> to with rate constant k.
func convert(from, to chem.EntityID, k float64) DeltaFunction {
	return func(n Updatable, v ConcentrationView) []ConcentrationDelta {
		r := k * v.Concentration(n, chem.Inner, from)
		return []ConcentrationDelta{
			NewDelta(n, chem.Inner, from, -r),
			NewDelta(n, chem.Inner, to, r),
		}
	}
}

// stepRecorder wraps a delta function and records the step of every
// half-step evaluation.
type stepRecorder struct {
	mu    sync.Mutex
	steps []float64
}

func (r *stepRecorder) wrap(entity chem.EntityID, errFor func(float64) float64) DeltaFunction {
	return profile(entity, func(dt float64) float64 {
		r.mu.Lock()
		r.steps = append(r.steps, dt)
		r.mu.Unlock()
		return errFor(dt)
	})
}

func (r *stepRecorder) recorded() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.steps))
	copy(out, r.steps)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialStep = 0.01
	cfg.Epsilon = 0.0005
	cfg.MinStep = 1e-9
	return cfg
}

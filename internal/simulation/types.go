package simulation

import (
	"fmt"
	"math"

	"github.com/san-kum/rdsim/internal/chem"
)

type ModuleState int32

const (
	Pending ModuleState = iota
	RequiringRecalculation
	Interrupted
	Done
)

func (s ModuleState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case RequiringRecalculation:
		return "REQUIRING_RECALCULATION"
	case Interrupted:
		return "INTERRUPTED"
	case Done:
		return "DONE"
	}
	return fmt.Sprintf("ModuleState(%d)", int32(s))
}

// Updatable is a spatial node owning a concentration container.
type Updatable interface {
	ID() string
	Concentrations() *chem.Container
}

// ConcentrationDelta is a proposed change of one entity in one subsection of
// one node.
type ConcentrationDelta struct {
	Module     string
	Node       Updatable
	Subsection chem.Subsection
	Entity     chem.EntityID
	Value      float64
}

func NewDelta(node Updatable, sub chem.Subsection, entity chem.EntityID, value float64) ConcentrationDelta {
	return ConcentrationDelta{Node: node, Subsection: sub, Entity: entity, Value: value}
}

func (d ConcentrationDelta) String() string {
	return fmt.Sprintf("%s[%s/%s/%s]%+g", d.Module, d.Node.ID(), d.Subsection, d.Entity, d.Value)
}

type deltaKey struct {
	node   string
	sub    chem.Subsection
	entity chem.EntityID
}

func (d ConcentrationDelta) key() deltaKey {
	return deltaKey{node: d.Node.ID(), sub: d.Subsection, entity: d.Entity}
}

// LocalError is the relative discrepancy between the full-step and the
// half-step estimate of one change.
type LocalError struct {
	Module string
	Node   string
	Entity chem.EntityID
	Value  float64
}

// NoLocalError seeds largest-error comparisons.
var NoLocalError = LocalError{Value: math.Inf(-1)}

// IsSet reports whether the error was produced by an actual comparison.
func (e LocalError) IsSet() bool {
	return !math.IsInf(e.Value, -1)
}

func (e LocalError) String() string {
	if !e.IsSet() {
		return "none"
	}
	return fmt.Sprintf("%.3e (%s at %s/%s)", e.Value, e.Module, e.Node, e.Entity)
}

// RelativeError returns |1 - full/half|. A zero half-step estimate yields
// +Inf unless the full-step estimate is zero too. Non-finite inputs yield
// +Inf.
func RelativeError(full, half float64) float64 {
	if half == 0 {
		if full == 0 {
			return 0
		}
		return math.Inf(1)
	}
	e := math.Abs(1 - full/half)
	if math.IsNaN(e) {
		return math.Inf(1)
	}
	return e
}

// ConcentrationView is the read surface handed to delta functions.
type ConcentrationView interface {
	Concentration(node Updatable, sub chem.Subsection, entity chem.EntityID) float64
}

// DeltaFunction returns the rates of change (per unit time) it proposes for
// node. The module scales them by the current step.
type DeltaFunction func(node Updatable, view ConcentrationView) []ConcentrationDelta

// Requirement names a feature a module needs from an entity.
type Requirement struct {
	Entity  chem.EntityID
	Feature chem.Feature
}

// EpochEvent is published after every accepted epoch.
type EpochEvent struct {
	Epoch          int64
	Time           float64
	Step           float64
	NextStep       float64
	LargestError   LocalError
	Attempts       int
	Recalculations int
	Snapshot       map[string]*chem.Container
}

type Observer interface {
	OnEpoch(ev EpochEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev EpochEvent)

func (f ObserverFunc) OnEpoch(ev EpochEvent) { f(ev) }

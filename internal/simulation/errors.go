package simulation

import (
	"errors"
	"fmt"

	"github.com/san-kum/rdsim/internal/chem"
)

// Domain errors for scheduling and configuration.
var (
	// ErrStepTooSmall indicates the time step would shrink below the floor.
	ErrStepTooSmall = errors.New("simulation: time step below minimum")

	// ErrRetriesExhausted indicates an epoch did not converge within the
	// configured number of recalculations.
	ErrRetriesExhausted = errors.New("simulation: recalculation retries exhausted")

	// ErrInvalidState indicates a commit would produce NaN or Inf.
	ErrInvalidState = errors.New("simulation: invalid state (NaN or Inf detected)")

	// ErrMissingFeature indicates a module requires a feature that was never
	// assigned to an entity.
	ErrMissingFeature = errors.New("simulation: required feature not assigned")

	// ErrUnknownEntity indicates a module refers to an entity absent from the
	// entity table.
	ErrUnknownEntity = errors.New("simulation: unknown entity")

	// ErrEmptyModule indicates a module without nodes or delta functions.
	ErrEmptyModule = errors.New("simulation: module has no nodes or delta functions")

	// ErrDuplicateModule indicates two modules share an identifier.
	ErrDuplicateModule = errors.New("simulation: duplicate module identifier")

	// ErrNotRegistered indicates a module was run without a scheduler.
	ErrNotRegistered = errors.New("simulation: module not registered with a scheduler")
)

// EpochError is the fatal failure of one epoch. Elapsed time and committed
// concentrations are unchanged when it is returned.
type EpochError struct {
	Epoch      int64
	Module     string
	Node       string
	Entity     chem.EntityID
	Step       float64
	LocalError float64
	Err        error
}

func (e *EpochError) Error() string {
	return fmt.Sprintf("epoch %d: module %s, node %s, entity %s (step=%g, local error=%g): %v",
		e.Epoch, e.Module, e.Node, e.Entity, e.Step, e.LocalError, e.Err)
}

func (e *EpochError) Unwrap() error {
	return e.Err
}

// FeatureError names a missing module requirement.
type FeatureError struct {
	Module  string
	Entity  chem.EntityID
	Feature chem.Feature
	Err     error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("module %s requires %s of entity %s: %v", e.Module, e.Feature, e.Entity, e.Err)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

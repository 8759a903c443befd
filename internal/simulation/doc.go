// Package simulation drives a discretized reaction-diffusion system with an
// adaptive global time step.
//
// The package defines the scheduling core of the simulator:
//
//   - [UpdateModule]: computes full-step and half-step concentration deltas
//     for the nodes it owns and estimates its largest [LocalError]
//   - [UpdateScheduler]: runs all modules concurrently, arbitrates
//     recalculation requests, shrinks or grows the step and commits
//   - [Simulation]: owns nodes, modules, scheduler, elapsed time and observers
//
// # Epochs
//
// Every call to [Simulation.NextEpoch] either commits the full-step deltas of
// all modules and advances the elapsed time by the accepted step, or fails
// with an [*EpochError] leaving both untouched. Deltas are estimated twice:
// once from the committed state and once from the state half a step ahead.
// Their relative discrepancy is the local error; an epoch is only accepted
// when no module exceeds the configured epsilon.
//
// # Example
//
//	s, _ := simulation.New(simulation.DefaultConfig(), entities, nodes...)
//	s.AddModule(kinetics.NewDiffusion(grid, entities, "A"))
//	err := s.Run(ctx, 100)
//
// # Thread Safety
//
// A Simulation is driven by one goroutine at a time. [Simulation.Snapshot],
// [Simulation.ElapsedTime] and observers may be used concurrently with a
// running epoch; they never see a partially committed state.
package simulation

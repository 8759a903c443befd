// Package chem provides the chemistry-side collaborators of the simulation:
// opaque entity identifiers, their feature table, cell subsections and the
// concentration container owned by each spatial node.
//
//   - [EntityID]: opaque map key for a chemical entity
//   - [Entity]: identifier plus a [FeatureSet] (diffusivity, rate constants)
//   - [Container]: subsection -> entity -> concentration
//
// # Thread Safety
//
// Container is NOT thread-safe. The update scheduler guarantees that
// containers are only read while modules compute and only written during the
// single-threaded commit phase.
package chem

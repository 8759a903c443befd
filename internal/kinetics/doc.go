// Package kinetics builds update modules for common reaction-diffusion
// processes on a graph.Grid. Every module reads its rate parameters from the
// entity table when it is constructed and declares them as requirements, so
// missing features surface through Simulation.CheckFeatures.
//
// All processes act on the inner subsection of a node.
package kinetics

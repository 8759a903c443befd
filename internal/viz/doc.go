// Package viz renders simulation state in the terminal.
//
// It provides:
//
//   - [Heatmap]: shaded concentration field of one entity over a grid
//   - [FrontMap]: Braille map of nodes above a threshold, 2x4 nodes per cell
//   - [PlotSeries]: asciigraph line plot of a recorded series
//   - [LiveModel]: Bubble Tea program stepping a simulation epoch by epoch
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the initial field
//	E     - Cycle the displayed entity
//	F     - Toggle heatmap / front map
//	T     - Cycle color themes
//	Q     - Quit
package viz

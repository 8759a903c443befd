package viz

import (
	"github.com/guptarohit/asciigraph"
)

// PlotSeries draws data with asciigraph, downsampling to width points.
func PlotSeries(data []float64, height, width int, caption string) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) == 1 {
		data = []float64{data[0], data[0]}
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// PlotMany overlays several series of equal meaning, e.g. the totals of
// several entities.
func PlotMany(series [][]float64, height, width int, caption string) string {
	if len(series) == 0 {
		return ""
	}
	colors := []asciigraph.AnsiColor{asciigraph.Cyan, asciigraph.Yellow, asciigraph.Magenta, asciigraph.Green, asciigraph.Red}
	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	}
	if len(series) <= len(colors) {
		opts = append(opts, asciigraph.SeriesColors(colors[:len(series)]...))
	}
	return asciigraph.PlotMany(series, opts...)
}

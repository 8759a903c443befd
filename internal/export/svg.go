// Package export renders stored runs as standalone SVG documents.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/rdsim/internal/viz"
)

const background = "#0a0a0a"

// FieldToSVG draws one square of side cell per node, colored along the
// theme's ramp relative to the field's range.
func FieldToSVG(f viz.Field, theme viz.Theme, cell float64) string {
	if len(f) == 0 || len(f[0]) == 0 {
		return ""
	}
	width := float64(len(f[0])) * cell
	height := float64(len(f)) * cell
	lo, hi := f.Range()

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
<g stroke="none">
`, width, height, width, height, background)

	for r, row := range f {
		for c, v := range row {
			norm := 0.0
			if hi > lo {
				norm = (v - lo) / (hi - lo)
			}
			fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"><title>%g</title></rect>
`, float64(c)*cell, float64(r)*cell, cell, cell, theme.Color(norm), v)
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// SeriesToSVG draws y over x as a polyline scaled into width x height with a
// 10% margin.
func SeriesToSVG(xs, ys []float64, width, height int, stroke string) string {
	n := min(len(xs), len(ys))
	if n < 2 {
		return ""
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 0; i < n; i++ {
		minX, maxX = min(minX, xs[i]), max(maxX, xs[i])
		minY, maxY = min(minY, ys[i]), max(maxY, ys[i])
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, background, stroke)

	for i := 0; i < n; i++ {
		x := (xs[i] - minX) / rangeX * float64(width)
		y := float64(height) - (ys[i]-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

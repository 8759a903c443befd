package export

import (
	"strings"
	"testing"

	"github.com/san-kum/rdsim/internal/viz"
)

func TestFieldToSVG(t *testing.T) {
	f := viz.Field{{0, 1}, {2, 3}}
	svg := FieldToSVG(f, viz.ThemeMono, 10)

	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatalf("not an svg document: %q", svg)
	}
	if got := strings.Count(svg, "<title>"); got != 4 {
		t.Errorf("expected 4 cells, got %d", got)
	}
	if !strings.Contains(svg, `width="20" height="20"`) {
		t.Error("expected a 20x20 document")
	}
	if !strings.Contains(svg, string(viz.ThemeMono.Color(0))) || !strings.Contains(svg, string(viz.ThemeMono.Color(1))) {
		t.Error("expected both ends of the ramp")
	}
	if FieldToSVG(nil, viz.ThemeMono, 10) != "" {
		t.Error("expected empty output for an empty field")
	}
}

func TestSeriesToSVG(t *testing.T) {
	svg := SeriesToSVG([]float64{0, 1, 2}, []float64{1, 1, 1}, 100, 50, "#00ff00")
	if !strings.Contains(svg, `stroke="#00ff00"`) {
		t.Error("missing stroke color")
	}
	if got := strings.Count(svg, " L"); got != 2 {
		t.Errorf("expected 2 line segments, got %d", got)
	}
	if SeriesToSVG([]float64{0}, []float64{1}, 100, 50, "#fff") != "" {
		t.Error("expected empty output for a single point")
	}
	// mismatched lengths use the common prefix
	if got := strings.Count(SeriesToSVG([]float64{0, 1, 2}, []float64{1, 2}, 10, 10, "#fff"), " L"); got != 1 {
		t.Errorf("expected 1 segment, got %d", got)
	}
}

package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/graph"
)

var shades = []rune(" ·░▒▓█")

// Field is a rows x cols matrix of total concentrations of one entity.
type Field [][]float64

func FieldOf(grid *graph.Grid, entity chem.EntityID) Field {
	f := make(Field, grid.Rows)
	for r := range f {
		f[r] = make([]float64, grid.Cols)
		for c := range f[r] {
			f[r][c] = grid.At(c, r).Concentrations().Total(entity)
		}
	}
	return f
}

// FieldFromSnapshot reads a field from a snapshot keyed by node id.
func FieldFromSnapshot(grid *graph.Grid, snap map[string]*chem.Container, entity chem.EntityID) Field {
	f := make(Field, grid.Rows)
	for r := range f {
		f[r] = make([]float64, grid.Cols)
		for c := range f[r] {
			if cont, ok := snap[grid.At(c, r).ID()]; ok {
				f[r][c] = cont.Total(entity)
			}
		}
	}
	return f
}

func (f Field) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range f {
		for _, v := range row {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	return lo, hi
}

// Heatmap renders one character pair per node, shaded and colored relative
// to the field's own range.
func Heatmap(f Field, theme Theme) string {
	if len(f) == 0 {
		return ""
	}
	lo, hi := f.Range()
	rng := hi - lo

	var b strings.Builder
	for i, row := range f {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, v := range row {
			norm := 0.0
			if rng > 0 {
				norm = (v - lo) / rng
			}
			ch := shades[clampIndex(int(norm*float64(len(shades)-1)+0.5), len(shades))]
			cell := strings.Repeat(string(ch), 2)
			b.WriteString(lipgloss.NewStyle().Foreground(theme.Color(norm)).Render(cell))
		}
	}
	return b.String()
}

// FrontMap marks every node whose value exceeds threshold as one Braille
// dot.
func FrontMap(f Field, threshold float64) string {
	if len(f) == 0 {
		return ""
	}
	rows, cols := len(f), len(f[0])
	c := NewCanvas((cols+1)/2, (rows+3)/4)
	for r, row := range f {
		for col, v := range row {
			if v > threshold {
				c.Set(col, r)
			}
		}
	}
	return c.String()
}

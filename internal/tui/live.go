// Package tui renders a running simulation to a plain ANSI terminal without
// taking over input.
package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/simulation"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

var ramp = []rune(" .:-=+*#%@")

// LiveRenderer draws the field of one entity after accepted epochs, at most
// frameRate times per second. It reads node values from the event snapshot.
type LiveRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	title     string
	grid      *graph.Grid
	entity    chem.EntityID
	frameRate int
	lastFrame time.Time
	frames    int
}

func NewLiveRenderer(out io.Writer, title string, grid *graph.Grid, entity chem.EntityID, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &LiveRenderer{out: out, title: title, grid: grid, entity: entity, frameRate: frameRate}
}

func (r *LiveRenderer) OnEpoch(ev simulation.EpochEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.frames++
	fmt.Fprint(r.out, r.frame(ev))
}

// Frames returns the number of frames drawn so far.
func (r *LiveRenderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *LiveRenderer) frame(ev simulation.EpochEvent) string {
	values := make([][]float64, r.grid.Rows)
	lo, hi := math.Inf(1), math.Inf(-1)
	for row := range values {
		values[row] = make([]float64, r.grid.Cols)
		for col := range values[row] {
			var v float64
			if c, ok := ev.Snapshot[r.grid.At(col, row).ID()]; ok {
				v = c.Total(r.entity)
			}
			values[row][col] = v
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}

	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  %s  epoch=%d  t=%.4g\n", r.title, r.entity, ev.Epoch, ev.Time)
	b.WriteString("  +" + strings.Repeat("-", r.grid.Cols) + "+\n")
	for _, row := range values {
		b.WriteString("  |")
		for _, v := range row {
			idx := 0
			if hi > lo {
				idx = int((v - lo) / (hi - lo) * float64(len(ramp)-1))
			}
			b.WriteRune(ramp[idx])
		}
		b.WriteString("|\n")
	}
	b.WriteString("  +" + strings.Repeat("-", r.grid.Cols) + "+\n")
	fmt.Fprintf(&b, "  step=%.3e next=%.3e err=%s attempts=%d\n", ev.Step, ev.NextStep, ev.LargestError, ev.Attempts)
	fmt.Fprintf(&b, "  range=[%.4g, %.4g]\n", lo, hi)
	return b.String()
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }

package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/simulation"
)

func event(t *testing.T, grid *graph.Grid) simulation.EpochEvent {
	t.Helper()
	snap := make(map[string]*chem.Container)
	for _, n := range grid.Nodes() {
		c := chem.NewContainer()
		c.Set(chem.Inner, "A", float64(n.Col))
		snap[n.ID()] = c
	}
	return simulation.EpochEvent{Epoch: 3, Time: 0.25, Step: 0.01, NextStep: 0.012, Snapshot: snap}
}

func TestLiveRenderer_Frame(t *testing.T) {
	grid, err := graph.NewGrid(5, 2, 1)
	require.NoError(t, err)

	var out bytes.Buffer
	r := NewLiveRenderer(&out, "spot", grid, "A", 1000)
	r.OnEpoch(event(t, grid))

	s := out.String()
	assert.True(t, strings.HasPrefix(s, clearScreen))
	assert.Contains(t, s, "epoch=3")
	assert.Contains(t, s, "|"+string(ramp[0]))
	assert.Contains(t, s, string(ramp[len(ramp)-1])+"|")
	assert.Contains(t, s, "range=[0, 4]")
	assert.Equal(t, 1, r.Frames())
}

func TestLiveRenderer_Throttle(t *testing.T) {
	grid, err := graph.NewGrid(2, 2, 1)
	require.NoError(t, err)

	var out bytes.Buffer
	r := NewLiveRenderer(&out, "spot", grid, "A", 1)
	ev := event(t, grid)
	r.OnEpoch(ev)
	r.OnEpoch(ev)
	r.OnEpoch(ev)
	assert.Equal(t, 1, r.Frames())
}

func TestLiveRenderer_Cursor(t *testing.T) {
	grid, err := graph.NewGrid(1, 1, 1)
	require.NoError(t, err)
	var out bytes.Buffer
	r := NewLiveRenderer(&out, "x", grid, "A", 0)
	r.Start()
	r.Stop()
	assert.Equal(t, hideCursor+showCursor, out.String())
}

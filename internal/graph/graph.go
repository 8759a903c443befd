// Package graph provides a rectangular lattice of spatial nodes, each owning
// a concentration container.
package graph

import (
	"fmt"

	"github.com/san-kum/rdsim/internal/chem"
)

type Node struct {
	id         string
	Col, Row   int
	container  *chem.Container
	neighbours []*Node
}

func (n *Node) ID() string                      { return n.id }
func (n *Node) Concentrations() *chem.Container { return n.container }
func (n *Node) Neighbours() []*Node             { return n.neighbours }

// Grid is a cols x rows lattice with von Neumann neighbourhoods.
type Grid struct {
	Cols, Rows int
	Spacing    float64
	nodes      []*Node
	byID       map[string]*Node
}

func NewGrid(cols, rows int, spacing float64) (*Grid, error) {
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", cols, rows)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %f", spacing)
	}

	g := &Grid{
		Cols:    cols,
		Rows:    rows,
		Spacing: spacing,
		nodes:   make([]*Node, 0, cols*rows),
		byID:    make(map[string]*Node, cols*rows),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			n := &Node{id: nodeID(c, r), Col: c, Row: r, container: chem.NewContainer()}
			g.nodes = append(g.nodes, n)
			g.byID[n.id] = n
		}
	}

	for _, n := range g.nodes {
		for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			if nb := g.At(n.Col+d[0], n.Row+d[1]); nb != nil {
				n.neighbours = append(n.neighbours, nb)
			}
		}
	}
	return g, nil
}

func nodeID(col, row int) string {
	return fmt.Sprintf("n%d_%d", col, row)
}

// At returns nil outside the grid.
func (g *Grid) At(col, row int) *Node {
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return nil
	}
	return g.nodes[row*g.Cols+col]
}

func (g *Grid) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns nodes in row-major order.
func (g *Grid) Nodes() []*Node {
	return g.nodes
}

// Center returns the node closest to the middle of the grid.
func (g *Grid) Center() *Node {
	return g.At(g.Cols/2, g.Rows/2)
}

package chem

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Subsection is a compartment of a node, e.g. the inner or outer phase of a
// membrane-bound cell.
type Subsection string

const (
	Inner    Subsection = "inner"
	Membrane Subsection = "membrane"
	Outer    Subsection = "outer"
)

// Container maps subsection -> entity -> concentration.
type Container struct {
	values map[Subsection]map[EntityID]float64
}

func NewContainer() *Container {
	return &Container{values: make(map[Subsection]map[EntityID]float64)}
}

// Get returns zero for unknown subsections or entities.
func (c *Container) Get(sub Subsection, e EntityID) float64 {
	if m, ok := c.values[sub]; ok {
		return m[e]
	}
	return 0
}

func (c *Container) Set(sub Subsection, e EntityID, v float64) {
	m, ok := c.values[sub]
	if !ok {
		m = make(map[EntityID]float64)
		c.values[sub] = m
	}
	m[e] = v
}

func (c *Container) Add(sub Subsection, e EntityID, delta float64) {
	c.Set(sub, e, c.Get(sub, e)+delta)
}

func (c *Container) Clone() *Container {
	out := NewContainer()
	for sub, m := range c.values {
		cm := make(map[EntityID]float64, len(m))
		for e, v := range m {
			cm[e] = v
		}
		out.values[sub] = cm
	}
	return out
}

func (c *Container) Subsections() []Subsection {
	subs := make([]Subsection, 0, len(c.values))
	for sub := range c.values {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	return subs
}

func (c *Container) Entities(sub Subsection) []EntityID {
	m := c.values[sub]
	ids := make([]EntityID, 0, len(m))
	for e := range m {
		ids = append(ids, e)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Total sums the concentration of e over all subsections.
func (c *Container) Total(e EntityID) float64 {
	vals := make([]float64, 0, len(c.values))
	for _, m := range c.values {
		vals = append(vals, m[e])
	}
	return floats.Sum(vals)
}

// Equal reports whether both containers hold the same non-zero values.
func (c *Container) Equal(other *Container) bool {
	return c.contains(other) && other.contains(c)
}

func (c *Container) contains(other *Container) bool {
	for sub, m := range c.values {
		for e, v := range m {
			if other.Get(sub, e) != v {
				return false
			}
		}
	}
	return true
}

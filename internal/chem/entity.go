package chem

import (
	"fmt"
	"sort"
)

// EntityID identifies a chemical entity. It carries no meaning beyond
// equality.
type EntityID string

// Feature is a closed set of quantitative properties a module may require.
type Feature int

const (
	Diffusivity Feature = iota
	RateConstant
	BackwardRateConstant
	DegradationRate
)

var featureNames = map[Feature]string{
	Diffusivity:          "diffusivity",
	RateConstant:         "rate_constant",
	BackwardRateConstant: "backward_rate_constant",
	DegradationRate:      "degradation_rate",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// ParseFeature maps a configuration name back to its Feature.
func ParseFeature(name string) (Feature, error) {
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature: %s", name)
}

// FeatureSet holds the assigned feature values of one entity.
type FeatureSet map[Feature]float64

func (fs FeatureSet) Get(f Feature) (float64, bool) {
	v, ok := fs[f]
	return v, ok
}

type Entity struct {
	ID       EntityID
	Features FeatureSet
}

func NewEntity(id EntityID) *Entity {
	return &Entity{ID: id, Features: make(FeatureSet)}
}

// With assigns a feature and returns the entity for chaining.
func (e *Entity) With(f Feature, v float64) *Entity {
	e.Features[f] = v
	return e
}

func (e *Entity) Feature(f Feature) (float64, bool) {
	return e.Features.Get(f)
}

// Table is the set of entities known to a simulation.
type Table struct {
	entities map[EntityID]*Entity
}

func NewTable(entities ...*Entity) *Table {
	t := &Table{entities: make(map[EntityID]*Entity)}
	for _, e := range entities {
		t.Add(e)
	}
	return t
}

func (t *Table) Add(e *Entity) {
	t.entities[e.ID] = e
}

func (t *Table) Get(id EntityID) (*Entity, bool) {
	e, ok := t.entities[id]
	return e, ok
}

// IDs returns all identifiers in sorted order.
func (t *Table) IDs() []EntityID {
	ids := make([]EntityID, 0, len(t.entities))
	for id := range t.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/kinetics"
	"github.com/san-kum/rdsim/internal/simulation"
)

// ModuleFactory builds an update module from the entities named in a module
// configuration.
type ModuleFactory func(grid *graph.Grid, entities *chem.Table, ids []chem.EntityID) (*simulation.UpdateModule, error)

type Registry struct {
	kinds map[string]ModuleFactory
}

func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]ModuleFactory)}

	r.kinds["diffusion"] = func(g *graph.Grid, t *chem.Table, ids []chem.EntityID) (*simulation.UpdateModule, error) {
		if len(ids) == 0 {
			return nil, fmt.Errorf("diffusion needs at least one entity")
		}
		return kinetics.NewDiffusion(g, t, ids...), nil
	}
	r.kinds["conversion"] = func(g *graph.Grid, t *chem.Table, ids []chem.EntityID) (*simulation.UpdateModule, error) {
		if len(ids) != 2 {
			return nil, fmt.Errorf("conversion needs [from, to], got %d entities", len(ids))
		}
		return kinetics.NewConversion(kinetics.Nodes(g), t, ids[0], ids[1]), nil
	}
	r.kinds["degradation"] = func(g *graph.Grid, t *chem.Table, ids []chem.EntityID) (*simulation.UpdateModule, error) {
		if len(ids) == 0 {
			return nil, fmt.Errorf("degradation needs at least one entity")
		}
		return kinetics.NewDegradation(kinetics.Nodes(g), t, ids...), nil
	}
	r.kinds["binding"] = func(g *graph.Grid, t *chem.Table, ids []chem.EntityID) (*simulation.UpdateModule, error) {
		if len(ids) != 3 {
			return nil, fmt.Errorf("binding needs [a, b, complex], got %d entities", len(ids))
		}
		return kinetics.NewBinding(kinetics.Nodes(g), t, ids[0], ids[1], ids[2]), nil
	}

	return r
}

// Register adds or replaces a module kind.
func (r *Registry) Register(kind string, f ModuleFactory) {
	r.kinds[kind] = f
}

func (r *Registry) Build(kind string, grid *graph.Grid, entities *chem.Table, ids []string) (*simulation.UpdateModule, error) {
	fn, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown module kind: %s", kind)
	}
	eids := make([]chem.EntityID, len(ids))
	for i, id := range ids {
		eids[i] = chem.EntityID(id)
	}
	return fn(grid, entities, eids)
}

func (r *Registry) ListKinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

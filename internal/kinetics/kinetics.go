package kinetics

import (
	"fmt"
	"strings"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/simulation"
)

// Nodes adapts grid nodes to the scheduler's node interface.
func Nodes(grid *graph.Grid) []simulation.Updatable {
	out := make([]simulation.Updatable, len(grid.Nodes()))
	for i, n := range grid.Nodes() {
		out[i] = n
	}
	return out
}

func feature(entities *chem.Table, id chem.EntityID, f chem.Feature) float64 {
	if entities == nil {
		return 0
	}
	e, ok := entities.Get(id)
	if !ok {
		return 0
	}
	v, _ := e.Feature(f)
	return v
}

func joinIDs(ids []chem.EntityID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}

// NewDiffusion exchanges each entity between von Neumann neighbours with
// the discrete Laplacian D*sum(c_nb - c)/h^2.
func NewDiffusion(grid *graph.Grid, entities *chem.Table, ids ...chem.EntityID) *simulation.UpdateModule {
	d := make(map[chem.EntityID]float64, len(ids))
	reqs := make([]simulation.Requirement, len(ids))
	for i, id := range ids {
		d[id] = feature(entities, id, chem.Diffusivity)
		reqs[i] = simulation.Requirement{Entity: id, Feature: chem.Diffusivity}
	}
	h2 := grid.Spacing * grid.Spacing

	fn := func(u simulation.Updatable, v simulation.ConcentrationView) []simulation.ConcentrationDelta {
		n, ok := grid.Node(u.ID())
		if !ok {
			return nil
		}
		out := make([]simulation.ConcentrationDelta, 0, len(ids))
		for _, id := range ids {
			c, lap := v.Concentration(n, chem.Inner, id), 0.0
			for _, nb := range n.Neighbours() {
				lap += v.Concentration(nb, chem.Inner, id) - c
			}
			out = append(out, simulation.NewDelta(n, chem.Inner, id, d[id]*lap/h2))
		}
		return out
	}

	return simulation.NewUpdateModule(fmt.Sprintf("diffusion[%s]", joinIDs(ids)), Nodes(grid), fn).Require(reqs...)
}

// NewConversion is the first-order reaction from -> to with the rate
// constant of from.
func NewConversion(nodes []simulation.Updatable, entities *chem.Table, from, to chem.EntityID) *simulation.UpdateModule {
	k := feature(entities, from, chem.RateConstant)

	fn := func(n simulation.Updatable, v simulation.ConcentrationView) []simulation.ConcentrationDelta {
		r := k * v.Concentration(n, chem.Inner, from)
		return []simulation.ConcentrationDelta{
			simulation.NewDelta(n, chem.Inner, from, -r),
			simulation.NewDelta(n, chem.Inner, to, r),
		}
	}

	return simulation.NewUpdateModule(fmt.Sprintf("conversion[%s->%s]", from, to), nodes, fn).
		Require(simulation.Requirement{Entity: from, Feature: chem.RateConstant})
}

// NewDegradation removes each entity at its own degradation rate.
func NewDegradation(nodes []simulation.Updatable, entities *chem.Table, ids ...chem.EntityID) *simulation.UpdateModule {
	k := make(map[chem.EntityID]float64, len(ids))
	reqs := make([]simulation.Requirement, len(ids))
	for i, id := range ids {
		k[id] = feature(entities, id, chem.DegradationRate)
		reqs[i] = simulation.Requirement{Entity: id, Feature: chem.DegradationRate}
	}

	fn := func(n simulation.Updatable, v simulation.ConcentrationView) []simulation.ConcentrationDelta {
		out := make([]simulation.ConcentrationDelta, 0, len(ids))
		for _, id := range ids {
			out = append(out, simulation.NewDelta(n, chem.Inner, id, -k[id]*v.Concentration(n, chem.Inner, id)))
		}
		return out
	}

	return simulation.NewUpdateModule(fmt.Sprintf("degradation[%s]", joinIDs(ids)), nodes, fn).Require(reqs...)
}

// NewBinding is the reversible mass-action reaction a + b <-> c. Forward and
// backward rate constants are features of the complex c.
func NewBinding(nodes []simulation.Updatable, entities *chem.Table, a, b, c chem.EntityID) *simulation.UpdateModule {
	kf := feature(entities, c, chem.RateConstant)
	kb := feature(entities, c, chem.BackwardRateConstant)

	fn := func(n simulation.Updatable, v simulation.ConcentrationView) []simulation.ConcentrationDelta {
		r := kf*v.Concentration(n, chem.Inner, a)*v.Concentration(n, chem.Inner, b) -
			kb*v.Concentration(n, chem.Inner, c)
		return []simulation.ConcentrationDelta{
			simulation.NewDelta(n, chem.Inner, a, -r),
			simulation.NewDelta(n, chem.Inner, b, -r),
			simulation.NewDelta(n, chem.Inner, c, r),
		}
	}

	return simulation.NewUpdateModule(fmt.Sprintf("binding[%s+%s<->%s]", a, b, c), nodes, fn).Require(
		simulation.Requirement{Entity: c, Feature: chem.RateConstant},
		simulation.Requirement{Entity: c, Feature: chem.BackwardRateConstant},
	)
}

package simulation

import "github.com/san-kum/rdsim/internal/chem"

type committedView struct{}

func (committedView) Concentration(node Updatable, sub chem.Subsection, entity chem.EntityID) float64 {
	return node.Concentrations().Get(sub, entity)
}

// halfStepView reads the committed state shifted by half of a module's own
// full-step deltas.
type halfStepView struct {
	offsets map[deltaKey]float64
}

func (v halfStepView) Concentration(node Updatable, sub chem.Subsection, entity chem.EntityID) float64 {
	return node.Concentrations().Get(sub, entity) + v.offsets[deltaKey{node: node.ID(), sub: sub, entity: entity}]
}

// deltaBuffer accumulates deltas per key in insertion order.
type deltaBuffer struct {
	order  []deltaKey
	deltas map[deltaKey]ConcentrationDelta
}

func newDeltaBuffer() *deltaBuffer {
	return &deltaBuffer{deltas: make(map[deltaKey]ConcentrationDelta)}
}

func (b *deltaBuffer) add(d ConcentrationDelta) {
	k := d.key()
	if prev, ok := b.deltas[k]; ok {
		prev.Value += d.Value
		b.deltas[k] = prev
		return
	}
	b.order = append(b.order, k)
	b.deltas[k] = d
}

func (b *deltaBuffer) get(k deltaKey) (ConcentrationDelta, bool) {
	d, ok := b.deltas[k]
	return d, ok
}

func (b *deltaBuffer) each(fn func(ConcentrationDelta)) {
	for _, k := range b.order {
		fn(b.deltas[k])
	}
}

func (b *deltaBuffer) len() int {
	return len(b.order)
}

func (b *deltaBuffer) clear() {
	b.order = b.order[:0]
	clear(b.deltas)
}

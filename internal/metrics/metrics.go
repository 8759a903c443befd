// Package metrics summarizes a run from the stream of accepted epochs.
package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/simulation"
)

// Metric observes accepted epochs and reduces them to one number.
type Metric interface {
	Name() string
	Observe(ev simulation.EpochEvent)
	Value() float64
	Reset()
}

// Set fans epochs out to several metrics. It is safe to register as a
// simulation observer.
type Set struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewSet(ms ...Metric) *Set {
	return &Set{metrics: ms}
}

func (s *Set) Add(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *Set) OnEpoch(ev simulation.EpochEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Observe(ev)
	}
}

func (s *Set) Values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Reset()
	}
}

// MassDrift tracks the largest relative deviation of an entity's total from
// the total seen at the first observed epoch. Epochs without a snapshot are
// skipped.
type MassDrift struct {
	entity   chem.EntityID
	initial  float64
	maxDrift float64
	samples  int
}

func NewMassDrift(entity chem.EntityID) *MassDrift {
	return &MassDrift{entity: entity}
}

func (m *MassDrift) Name() string { return "mass_drift[" + string(m.entity) + "]" }

func (m *MassDrift) Observe(ev simulation.EpochEvent) {
	if ev.Snapshot == nil {
		return
	}
	var total float64
	for _, c := range ev.Snapshot {
		total += c.Total(m.entity)
	}
	if m.samples == 0 {
		m.initial = total
	}
	m.samples++

	drift := math.Abs(total - m.initial)
	if m.initial != 0 {
		drift /= math.Abs(m.initial)
	}
	if drift > m.maxDrift {
		m.maxDrift = drift
	}
}

func (m *MassDrift) Value() float64 { return m.maxDrift }

func (m *MassDrift) Reset() {
	m.initial, m.maxDrift, m.samples = 0, 0, 0
}

// Acceptance is the fraction of epochs accepted on their first attempt.
type Acceptance struct {
	accepted int
	samples  int
}

func NewAcceptance() *Acceptance { return &Acceptance{} }

func (a *Acceptance) Name() string { return "acceptance" }

func (a *Acceptance) Observe(ev simulation.EpochEvent) {
	a.samples++
	if ev.Recalculations == 0 {
		a.accepted++
	}
}

func (a *Acceptance) Value() float64 {
	if a.samples == 0 {
		return 1.0
	}
	return float64(a.accepted) / float64(a.samples)
}

func (a *Acceptance) Reset() {
	a.accepted, a.samples = 0, 0
}

// Mean averages one field of the epoch event.
type Mean struct {
	name    string
	field   func(simulation.EpochEvent) float64
	sum     float64
	samples int
}

func NewMeanStep() *Mean {
	return &Mean{name: "mean_step", field: func(ev simulation.EpochEvent) float64 { return ev.Step }}
}

// NewMeanError averages the largest local error; epochs where no delta was
// evaluated count as zero.
func NewMeanError() *Mean {
	return &Mean{name: "mean_local_error", field: func(ev simulation.EpochEvent) float64 {
		if !ev.LargestError.IsSet() {
			return 0
		}
		return ev.LargestError.Value
	}}
}

func (m *Mean) Name() string { return m.name }

func (m *Mean) Observe(ev simulation.EpochEvent) {
	m.sum += m.field(ev)
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum, m.samples = 0, 0
}

// Defaults returns the metrics recorded for every run: mass drift per
// entity plus the scheduler statistics.
func Defaults(entities []chem.EntityID) []Metric {
	ms := []Metric{NewAcceptance(), NewMeanStep(), NewMeanError()}
	for _, id := range entities {
		ms = append(ms, NewMassDrift(id))
	}
	return ms
}

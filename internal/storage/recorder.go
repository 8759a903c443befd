package storage

import (
	"sync"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/simulation"
)

// Recorder is a simulation observer keeping every k-th accepted epoch.
type Recorder struct {
	mu    sync.Mutex
	every int64
	nodes []string
	ids   []chem.EntityID
	traj  Trajectory
}

func NewRecorder(every int, nodes []string, entities []chem.EntityID) *Recorder {
	if every < 1 {
		every = 1
	}
	r := &Recorder{every: int64(every), nodes: nodes, ids: entities}
	for _, n := range nodes {
		for _, id := range entities {
			r.traj.Columns = append(r.traj.Columns, Column(n, id))
		}
	}
	return r
}

// Capture records the current state as an epoch-0 sample.
func (r *Recorder) Capture(snapshot map[string]*chem.Container) {
	r.record(simulation.EpochEvent{LargestError: simulation.NoLocalError, Snapshot: snapshot})
}

func (r *Recorder) OnEpoch(ev simulation.EpochEvent) {
	if ev.Epoch%r.every != 0 {
		return
	}
	r.record(ev)
}

func (r *Recorder) record(ev simulation.EpochEvent) {
	values := make([]float64, 0, len(r.traj.Columns))
	for _, n := range r.nodes {
		c := ev.Snapshot[n]
		for _, id := range r.ids {
			if c == nil {
				values = append(values, 0)
				continue
			}
			values = append(values, c.Total(id))
		}
	}
	le := ev.LargestError.Value
	if !ev.LargestError.IsSet() {
		le = 0
	}

	r.mu.Lock()
	r.traj.Samples = append(r.traj.Samples, Sample{
		Epoch:      ev.Epoch,
		Time:       ev.Time,
		Step:       ev.Step,
		LocalError: le,
		Values:     values,
	})
	r.mu.Unlock()
}

// Trajectory returns a copy of what has been recorded so far.
func (r *Recorder) Trajectory() *Trajectory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := &Trajectory{
		Columns: append([]string(nil), r.traj.Columns...),
		Samples: make([]Sample, len(r.traj.Samples)),
	}
	copy(out.Samples, r.traj.Samples)
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.traj.Samples)
}

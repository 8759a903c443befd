package simulation

import "sync"

// barrier releases every waiter once n parties have arrived.
type barrier struct {
	mu        sync.Mutex
	remaining int
	done      chan struct{}
}

func newBarrier(n int) *barrier {
	b := &barrier{remaining: n, done: make(chan struct{})}
	if n <= 0 {
		close(b.done)
	}
	return b
}

func (b *barrier) Arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining--
	switch {
	case b.remaining == 0:
		close(b.done)
	case b.remaining < 0:
		panic("simulation: barrier arrival after release")
	}
}

func (b *barrier) Wait() {
	<-b.done
}

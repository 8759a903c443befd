package simulation

import (
	"context"
	"errors"
	"math"
	"sync"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rdsim/internal/chem"
)

var _ = g.Describe("UpdateScheduler", func() {
	var (
		ctx    context.Context
		cfg    Config
		n0, n1 *testNode
	)

	g.BeforeEach(func() {
		ctx = context.Background()
		cfg = testConfig()
		n0 = newTestNode("n0")
		n1 = newTestNode("n1")
	})

	newSim := func(modules ...*UpdateModule) *Simulation {
		s, err := New(cfg, nil, n0, n1)
		Expect(err).NotTo(HaveOccurred())
		for _, m := range modules {
			Expect(s.AddModule(m)).To(Succeed())
		}
		return s
	}

	recordEvents := func(s *Simulation) *[]EpochEvent {
		var events []EpochEvent
		s.AddObserver(ObserverFunc(func(ev EpochEvent) { events = append(events, ev) }))
		return &events
	}

	g.Context("when every module is within epsilon", func() {
		g.It("accepts the epoch and grows the step", func() {
			x := NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(0.0003)))
			y := NewUpdateModule("Y", []Updatable{n1}, profile("A", fixedError(0)))
			s := newSim(x, y)
			events := recordEvents(s)

			Expect(s.NextEpoch(ctx)).To(Succeed())

			Expect(s.ElapsedTime()).To(BeNumerically("~", 0.01, 1e-15))
			Expect(s.TimeStep()).To(BeNumerically("~", 0.012, 1e-12))
			Expect(s.Epoch()).To(Equal(int64(1)))
			Expect(n0.c.Get(chem.Inner, "A")).To(BeNumerically("~", 0.01, 1e-15))
			Expect(n1.c.Get(chem.Inner, "A")).To(BeNumerically("~", 0.01, 1e-15))

			Expect(*events).To(HaveLen(1))
			ev := (*events)[0]
			Expect(ev.Attempts).To(Equal(1))
			Expect(ev.Recalculations).To(BeZero())
			Expect(ev.LargestError.Module).To(Equal("X"))
			Expect(ev.LargestError.Value).To(BeNumerically("~", 0.0003, 1e-9))
			Expect(x.State()).To(Equal(Done))
			Expect(y.State()).To(Equal(Done))
		})

		g.It("does not grow beyond the maximum step", func() {
			cfg.MaxStep = 0.011
			s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(0))))

			Expect(s.NextEpoch(ctx)).To(Succeed())
			Expect(s.TimeStep()).To(Equal(0.011))
		})

		g.It("keeps the step when the error is close to epsilon", func() {
			s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(0.00045))))

			Expect(s.NextEpoch(ctx)).To(Succeed())
			Expect(s.TimeStep()).To(Equal(0.01))
		})
	})

	g.Context("when two modules exceed epsilon", func() {
		var x, y *UpdateModule

		g.BeforeEach(func() {
			x = NewUpdateModule("X", []Updatable{n0}, profile("A", errorAbove(0.005, 0.01, 0.0001)))
			y = NewUpdateModule("Y", []Updatable{n1}, profile("A", errorAbove(0.005, 0.004, 0)))
		})

		g.It("grants only the module with the largest error", func() {
			s := newSim(x, y)
			sched := s.Scheduler()

			Expect(sched.runAttempt(ctx, sched.activeModules())).To(Succeed())

			Expect(x.State()).To(Equal(Done))
			Expect(x.ComputedStep()).To(BeNumerically("~", 0.004, 1e-15))
			Expect(y.State()).To(Equal(Interrupted))
			Expect(sched.TimeStep()).To(BeNumerically("~", 0.004, 1e-15))
			Expect(s.ElapsedTime()).To(BeZero())
		})

		g.It("recomputes the interrupted module and commits without growth", func() {
			s := newSim(x, y)
			events := recordEvents(s)

			Expect(s.NextEpoch(ctx)).To(Succeed())

			ev := (*events)[0]
			Expect(ev.Step).To(BeNumerically("~", 0.004, 1e-15))
			Expect(ev.NextStep).To(Equal(ev.Step))
			Expect(ev.Attempts).To(Equal(2))
			Expect(ev.Recalculations).To(Equal(1))
			Expect(ev.LargestError.Value).To(BeNumerically("<=", cfg.Epsilon))
			Expect(s.ElapsedTime()).To(BeNumerically("~", 0.004, 1e-15))
			Expect(n1.c.Get(chem.Inner, "A")).To(BeNumerically("~", 0.004, 1e-15))
		})
	})

	g.It("never grants two concurrent interrupt requests", func() {
		modules := make([]*UpdateModule, 8)
		for i := range modules {
			e := 0.01 * float64(i+1)
			modules[i] = NewUpdateModule(string(rune('A'+i)), []Updatable{n0}, profile("A", fixedError(e)))
		}
		s := newSim(modules...)
		sched := s.Scheduler()
		for _, m := range modules {
			m.compute(sched.TimeStep(), cfg)
			sched.report(m)
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted []*UpdateModule
		)
		for _, m := range modules {
			wg.Add(1)
			go func(m *UpdateModule) {
				defer wg.Done()
				if sched.Interrupt(m) {
					mu.Lock()
					granted = append(granted, m)
					mu.Unlock()
				}
			}(m)
		}
		wg.Wait()

		Expect(granted).To(HaveLen(1))
		Expect(granted[0]).To(BeIdenticalTo(modules[7]))
		Expect(sched.TimeStep()).To(BeNumerically("~", 0.004, 1e-15))
	})

	g.It("only shrinks the step while an epoch is recalculated", func() {
		rec := &stepRecorder{}
		s := newSim(NewUpdateModule("X", []Updatable{n0}, rec.wrap("A", func(dt float64) float64 { return 0.2 * dt })))
		events := recordEvents(s)

		Expect(s.NextEpoch(ctx)).To(Succeed())

		steps := rec.recorded()
		Expect(steps).To(HaveLen(3))
		for i := 1; i < len(steps); i++ {
			Expect(steps[i]).To(BeNumerically("<", steps[i-1]))
		}
		Expect((*events)[0].Recalculations).To(Equal(2))
		Expect((*events)[0].Step).To(BeNumerically("~", 0.0016, 1e-12))
	})

	g.Context("when the half-step estimate is zero", func() {
		g.It("forces a shrink regardless of epsilon", func() {
			cfg.Epsilon = 1e6
			s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", errorAbove(0.005, math.Inf(1), 0))))
			events := recordEvents(s)

			Expect(s.NextEpoch(ctx)).To(Succeed())
			Expect((*events)[0].Recalculations).To(Equal(1))
			Expect((*events)[0].Step).To(BeNumerically("~", 0.004, 1e-15))
		})

		g.It("fails the epoch once the step floor is reached", func() {
			cfg.MinStep = 1e-6
			cfg.MaxRetries = 100
			s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(math.Inf(1)))))

			err := s.NextEpoch(ctx)

			Expect(err).To(MatchError(ErrStepTooSmall))
			var epochErr *EpochError
			Expect(errors.As(err, &epochErr)).To(BeTrue())
			Expect(epochErr.Epoch).To(Equal(int64(1)))
			Expect(epochErr.Module).To(Equal("X"))
			Expect(epochErr.Node).To(Equal("n0"))
			Expect(epochErr.Entity).To(Equal(chem.EntityID("A")))
			Expect(math.IsInf(epochErr.LocalError, 1)).To(BeTrue())
			Expect(epochErr.Step).To(BeNumerically(">=", cfg.MinStep))

			Expect(s.ElapsedTime()).To(BeZero())
			Expect(s.Epoch()).To(BeZero())
			Expect(n0.c.Get(chem.Inner, "A")).To(BeZero())
		})

		g.It("fails the epoch once retries are exhausted", func() {
			cfg.MaxRetries = 3
			s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(math.Inf(1)))))

			err := s.NextEpoch(ctx)

			Expect(err).To(MatchError(ErrRetriesExhausted))
			var epochErr *EpochError
			Expect(errors.As(err, &epochErr)).To(BeTrue())
			Expect(epochErr.Step).To(BeNumerically("~", 0.01*0.4*0.4*0.4, 1e-15))
			Expect(s.ElapsedTime()).To(BeZero())
		})

		g.It("restores the step of a failed epoch", func() {
			cfg.MaxRetries = 3
			s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(math.Inf(1)))))

			Expect(s.NextEpoch(ctx)).To(MatchError(ErrRetriesExhausted))
			Expect(s.TimeStep()).To(Equal(cfg.InitialStep))

			Expect(s.NextEpoch(ctx)).To(MatchError(ErrRetriesExhausted))
			Expect(s.TimeStep()).To(Equal(cfg.InitialStep))
			Expect(s.Epoch()).To(BeZero())
		})
	})

	g.It("commits concurrent modules on the same node atomically", func() {
		n0.c.Set(chem.Inner, "A", 1)
		n0.c.Set(chem.Inner, "B", 1)
		forward := NewUpdateModule("forward", []Updatable{n0}, convert("A", "B", 1))
		backward := NewUpdateModule("backward", []Updatable{n0}, convert("B", "A", 0.5))
		s := newSim(forward, backward)

		done := make(chan struct{})
		var (
			wg       sync.WaitGroup
			maxDrift float64
			reads    int
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := s.Snapshot()
				total := snap["n0"].Get(chem.Inner, "A") + snap["n0"].Get(chem.Inner, "B")
				maxDrift = math.Max(maxDrift, math.Abs(total-2))
				reads++
			}
		}()

		Expect(s.Run(ctx, 50)).To(Succeed())
		close(done)
		wg.Wait()

		Expect(reads).To(BeNumerically(">", 0))
		Expect(maxDrift).To(BeNumerically("<", 1e-9))
		Expect(n0.c.Get(chem.Inner, "B")).To(BeNumerically(">", n0.c.Get(chem.Inner, "A")))
	})

	g.It("advances time strictly and keeps every accepted error within epsilon", func() {
		cfg.Epsilon = 0.01
		for _, n := range []*testNode{n0, n1} {
			n.c.Set(chem.Inner, "A", 5)
		}
		s := newSim(
			NewUpdateModule("decay-0", []Updatable{n0}, decay("A", 1)),
			NewUpdateModule("decay-1", []Updatable{n1}, decay("A", 2)),
		)
		events := recordEvents(s)

		Expect(s.Run(ctx, 30)).To(Succeed())

		Expect(*events).To(HaveLen(30))
		prev := 0.0
		for i, ev := range *events {
			Expect(ev.Epoch).To(Equal(int64(i + 1)))
			Expect(ev.Step).To(BeNumerically(">", 0))
			Expect(ev.Time).To(BeNumerically(">", prev))
			Expect(ev.Time - prev).To(BeNumerically("~", ev.Step, 1e-12))
			Expect(ev.LargestError.Value).To(BeNumerically("<=", cfg.Epsilon))
			if i > 0 {
				Expect(ev.Step).To(Equal((*events)[i-1].NextStep))
			}
			prev = ev.Time
		}
		Expect(s.ElapsedTime()).To(Equal(prev))
		Expect((*events)[29].Snapshot["n1"].Get(chem.Inner, "A")).To(Equal(n1.c.Get(chem.Inner, "A")))
	})

	g.It("reproduces a run after Reset", func() {
		n0.c.Set(chem.Inner, "A", 2)
		s := newSim(NewUpdateModule("decay", []Updatable{n0}, decay("A", 3)))

		Expect(s.Run(ctx, 10)).To(Succeed())
		first := s.Snapshot()
		firstTime := s.ElapsedTime()

		s.Reset()
		Expect(s.ElapsedTime()).To(BeZero())
		Expect(s.Epoch()).To(BeZero())
		Expect(s.TimeStep()).To(Equal(cfg.InitialStep))
		Expect(n0.c.Get(chem.Inner, "A")).To(Equal(2.0))

		Expect(s.Run(ctx, 10)).To(Succeed())
		Expect(s.ElapsedTime()).To(Equal(firstTime))
		Expect(s.Snapshot()["n0"].Equal(first["n0"])).To(BeTrue())
	})

	g.It("runs until the requested time", func() {
		s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(0))))

		Expect(s.RunUntil(ctx, 0.1)).To(Succeed())
		Expect(s.ElapsedTime()).To(BeNumerically(">=", 0.1))
	})

	g.It("stops when the context is cancelled", func() {
		s := newSim(NewUpdateModule("X", []Updatable{n0}, profile("A", fixedError(0))))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Expect(s.Run(cancelled, 5)).To(MatchError(context.Canceled))
		Expect(s.Epoch()).To(BeZero())
	})
})

var _ = g.Describe("UpdateModule", func() {
	g.It("returns to Pending on every Reset", func() {
		n := newTestNode("n0")
		m := NewUpdateModule("X", []Updatable{n}, profile("A", fixedError(0.5)))
		m.compute(0.01, testConfig())
		Expect(m.State()).To(Equal(RequiringRecalculation))
		Expect(m.Deltas()).To(HaveLen(1))

		for i := 0; i < 2; i++ {
			m.Reset()
			Expect(m.State()).To(Equal(Pending))
			Expect(m.LargestLocalError()).To(Equal(NoLocalError))
			Expect(m.Deltas()).To(BeEmpty())
			Expect(m.ComputedStep()).To(BeZero())
		}
	})

	g.It("ignores deltas at or below the cutoff when estimating error", func() {
		n := newTestNode("n0")
		cfg := testConfig()
		cfg.DeltaCutoff = 1
		m := NewUpdateModule("X", []Updatable{n}, profile("A", fixedError(math.Inf(1))))
		m.compute(0.01, cfg)

		Expect(m.State()).To(Equal(Done))
		Expect(m.LargestLocalError().IsSet()).To(BeFalse())
		Expect(m.Deltas()).To(HaveLen(1))
	})

	g.It("does not compare pairs whose full-step delta is zero", func() {
		n := newTestNode("n0")
		// B changes at a constant rate; C is still at rest at the committed
		// state but moves once B has advanced half a step.
		fn := func(n Updatable, v ConcentrationView) []ConcentrationDelta {
			shifted := v.Concentration(n, chem.Inner, "B") - n.Concentrations().Get(chem.Inner, "B")
			c := 0.0
			if shifted != 0 {
				c = 0.5
			}
			return []ConcentrationDelta{
				NewDelta(n, chem.Inner, "B", 1),
				NewDelta(n, chem.Inner, "C", c),
			}
		}
		m := NewUpdateModule("X", []Updatable{n}, fn)
		m.compute(0.01, testConfig())

		Expect(RelativeError(0, 0.005)).To(Equal(1.0))
		Expect(m.State()).To(Equal(Done))
		Expect(m.LargestLocalError().Entity).To(Equal(chem.EntityID("B")))
		Expect(m.LargestLocalError().Value).To(BeZero())
	})

	g.It("panics when committed twice", func() {
		n := newTestNode("n0")
		m := NewUpdateModule("X", []Updatable{n}, profile("A", fixedError(0)))
		Expect(func() { m.markCommitted() }).To(Panic())

		m.compute(0.01, testConfig())
		m.markCommitted()
		Expect(func() { m.markCommitted() }).To(Panic())
	})

	g.It("refuses to run outside a simulation", func() {
		m := NewUpdateModule("X", []Updatable{newTestNode("n0")}, profile("A", fixedError(0)))
		Expect(m.Run(context.Background())).To(MatchError(ErrNotRegistered))
	})
})

var _ = g.Describe("Simulation", func() {
	var entities *chem.Table

	g.BeforeEach(func() {
		entities = chem.NewTable(
			chem.NewEntity("A").With(chem.Diffusivity, 0.1),
			chem.NewEntity("B"),
		)
	})

	g.It("reports every missing feature before the first epoch", func() {
		n := newTestNode("n0")
		s, err := New(DefaultConfig(), entities, n)
		Expect(err).NotTo(HaveOccurred())

		m := NewUpdateModule("reaction", []Updatable{n}, decay("A", 1)).Require(
			Requirement{Entity: "A", Feature: chem.Diffusivity},
			Requirement{Entity: "A", Feature: chem.RateConstant},
			Requirement{Entity: "Z", Feature: chem.Diffusivity},
		)
		Expect(s.AddModule(m)).To(Succeed())

		err = s.NextEpoch(context.Background())
		Expect(err).To(MatchError(ErrMissingFeature))
		Expect(err).To(MatchError(ErrUnknownEntity))

		var featureErr *FeatureError
		Expect(errors.As(err, &featureErr)).To(BeTrue())
		Expect(featureErr.Module).To(Equal("reaction"))
		Expect(s.ElapsedTime()).To(BeZero())
	})

	g.It("rejects empty and foreign modules", func() {
		n := newTestNode("n0")
		s, err := New(DefaultConfig(), entities, n)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.AddModule(NewUpdateModule("empty", nil))).To(Succeed())
		Expect(s.AddModule(NewUpdateModule("foreign", []Updatable{newTestNode("elsewhere")}, decay("A", 1)))).To(Succeed())

		err = s.CheckFeatures()
		Expect(err).To(MatchError(ErrEmptyModule))
		Expect(err.Error()).To(ContainSubstring("elsewhere"))
	})

	g.It("rejects duplicate identifiers", func() {
		n := newTestNode("n0")
		_, err := New(DefaultConfig(), entities, n, n)
		Expect(err).To(HaveOccurred())

		s, err := New(DefaultConfig(), entities, n)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.AddModule(NewUpdateModule("X", []Updatable{n}, decay("A", 1)))).To(Succeed())
		Expect(s.AddModule(NewUpdateModule("X", []Updatable{n}, decay("A", 1)))).To(MatchError(ErrDuplicateModule))
	})

	g.It("rejects an invalid scheduler configuration", func() {
		cfg := DefaultConfig()
		cfg.Epsilon = -1
		_, err := New(cfg, entities)
		Expect(err).To(HaveOccurred())
	})

	g.It("refuses to commit non-finite concentrations", func() {
		n := newTestNode("n0")
		n.c.Set(chem.Inner, "A", math.MaxFloat64)
		cfg := DefaultConfig()
		cfg.Epsilon = 1
		s, err := New(cfg, entities, n)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.AddModule(NewUpdateModule("blowup", []Updatable{n}, func(node Updatable, _ ConcentrationView) []ConcentrationDelta {
			return []ConcentrationDelta{NewDelta(node, chem.Inner, "A", math.MaxFloat64)}
		}))).To(Succeed())

		err = s.NextEpoch(context.Background())
		Expect(err).To(MatchError(ErrInvalidState))
		Expect(n.c.Get(chem.Inner, "A")).To(Equal(math.MaxFloat64))
		Expect(s.ElapsedTime()).To(BeZero())
	})
})

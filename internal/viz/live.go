package viz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/simulation"
)

const (
	historyCapacity = 600
	frameInterval   = time.Second / 30
)

var (
	fieldStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(46)
	graphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

type tickMsg time.Time

type epochMsg struct {
	ev  simulation.EpochEvent
	err error
}

// eventFeed keeps the last event published by the simulation.
type eventFeed struct {
	mu   sync.Mutex
	last simulation.EpochEvent
}

func (f *eventFeed) OnEpoch(ev simulation.EpochEvent) {
	f.mu.Lock()
	f.last = ev
	f.mu.Unlock()
}

func (f *eventFeed) get() simulation.EpochEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// LiveModel steps a simulation one epoch per frame and shows the field of
// one entity next to the scheduler state. At most one epoch is in flight.
type LiveModel struct {
	title    string
	sim      *simulation.Simulation
	grid     *graph.Grid
	entities []chem.EntityID
	feed     *eventFeed

	entity    int
	theme     int
	running   bool
	busy      bool
	frontView bool

	last   simulation.EpochEvent
	steps  []float64
	errors []float64
	err    error
}

func NewLiveModel(title string, s *simulation.Simulation, grid *graph.Grid, entities []chem.EntityID) LiveModel {
	feed := &eventFeed{}
	s.AddObserver(feed)
	return LiveModel{
		title:    title,
		sim:      s,
		grid:     grid,
		entities: entities,
		feed:     feed,
		running:  true,
		steps:    make([]float64, 0, historyCapacity),
		errors:   make([]float64, 0, historyCapacity),
	}
}

// WithTheme selects the starting theme by name.
func (m LiveModel) WithTheme(name string) LiveModel {
	for i, t := range Themes {
		if t.Name == name {
			m.theme = i
		}
	}
	return m
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m LiveModel) Init() tea.Cmd {
	return tick()
}

func (m LiveModel) stepCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.sim.NextEpoch(context.Background())
		if err != nil {
			return epochMsg{err: err}
		}
		return epochMsg{ev: m.feed.get()}
	}
}

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if m.err == nil {
				m.running = !m.running
			}
		case "r":
			if !m.busy {
				m.sim.Reset()
				m.last = simulation.EpochEvent{}
				m.steps, m.errors, m.err = m.steps[:0], m.errors[:0], nil
			}
		case "e":
			if len(m.entities) > 0 {
				m.entity = (m.entity + 1) % len(m.entities)
			}
		case "f":
			m.frontView = !m.frontView
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
		}
		return m, nil

	case tickMsg:
		if m.running && !m.busy && m.err == nil {
			m.busy = true
			return m, m.stepCmd()
		}
		return m, tick()

	case epochMsg:
		m.busy = false
		if msg.err != nil {
			m.err, m.running = msg.err, false
			return m, tick()
		}
		m.last = msg.ev
		m.steps = appendCapped(m.steps, msg.ev.Step)
		m.errors = appendCapped(m.errors, msg.ev.LargestError.Value)
		return m, tick()
	}
	return m, nil
}

func appendCapped(s []float64, v float64) []float64 {
	if len(s) >= historyCapacity {
		copy(s, s[1:])
		s = s[:len(s)-1]
	}
	return append(s, v)
}

func (m LiveModel) currentEntity() chem.EntityID {
	if len(m.entities) == 0 {
		return ""
	}
	return m.entities[m.entity]
}

func (m LiveModel) View() string {
	theme := Themes[m.theme]
	entity := m.currentEntity()
	field := FieldOf(m.grid, entity)

	var fieldView string
	if m.frontView {
		lo, hi := field.Range()
		fieldView = FrontMap(field, lo+(hi-lo)/2)
	} else {
		fieldView = Heatmap(field, theme)
	}

	var s strings.Builder
	s.WriteString(Title.Foreground(theme.Accent).Render(strings.ToUpper(m.title)) + "\n")
	switch {
	case m.err != nil:
		s.WriteString(StatusFailed.Render("FAILED") + "\n" + Subtle.Render(m.err.Error()) + "\n\n")
	case m.running:
		s.WriteString(StatusRunning.Render("RUNNING") + "\n\n")
	default:
		s.WriteString(StatusPaused.Render("PAUSED") + "\n\n")
	}

	lo, hi := field.Range()
	s.WriteString(Metric("Epoch", fmt.Sprintf("%d", m.last.Epoch)) + "\n")
	s.WriteString(Metric("Time", fmt.Sprintf("%.5g", m.sim.ElapsedTime())) + "\n")
	s.WriteString(Metric("Step", fmt.Sprintf("%.3e", m.last.Step)) + "\n")
	s.WriteString(Metric("Next step", fmt.Sprintf("%.3e", m.sim.TimeStep())) + "\n")
	s.WriteString(Metric("Local error", m.last.LargestError.String()) + "\n")
	s.WriteString(Metric("Attempts", fmt.Sprintf("%d (%d shrinks)", m.last.Attempts, m.last.Recalculations)) + "\n")
	s.WriteString(Metric("Entity", fmt.Sprintf("%s [%.3g, %.3g]", entity, lo, hi)) + "\n")
	s.WriteString(Metric("Theme", theme.Name) + "\n\n")

	s.WriteString(SparklineChart(m.steps, 40) + "\n")
	if len(m.steps) > 1 {
		s.WriteString(graphStyle.Render(PlotSeries(m.steps, 4, 36, "step size")) + "\n")
	}
	s.WriteString(KeyHint.Render("SP:Pause R:Reset E:Entity F:Front T:Theme Q:Quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top, fieldStyle.Render(fieldView), statsStyle.Render(s.String()))
}

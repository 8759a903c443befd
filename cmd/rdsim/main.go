package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/rdsim/internal/chem"
	"github.com/san-kum/rdsim/internal/config"
	"github.com/san-kum/rdsim/internal/experiment"
	"github.com/san-kum/rdsim/internal/export"
	"github.com/san-kum/rdsim/internal/graph"
	"github.com/san-kum/rdsim/internal/observability"
	"github.com/san-kum/rdsim/internal/optim"
	"github.com/san-kum/rdsim/internal/simulation"
	"github.com/san-kum/rdsim/internal/storage"
	"github.com/san-kum/rdsim/internal/tui"
	"github.com/san-kum/rdsim/internal/viz"
)

var (
	dataDir     string
	logLevel    string
	configFile  string
	preset      string
	epochs      int
	duration    float64
	epsilon     float64
	initialStep float64
	cols        int
	rows        int
	recordEvery int
	metricsAddr string
	traceOut    string
	watch       bool
	frameRate   int
	theme       string
	entity      string
	output      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rdsim",
		Short:        "adaptive-step reaction-diffusion simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rdsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and store its trajectory",
		RunE:  runSimulation,
	}
	addSetupFlags(runCmd)
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	runCmd.Flags().StringVar(&traceOut, "trace", "", "write epoch spans to this file ('-' for stdout)")
	runCmd.Flags().BoolVar(&watch, "watch", false, "draw the field while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "frame rate of --watch")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "step a simulation interactively",
		RunE:  runLive,
	}
	addSetupFlags(liveCmd)
	liveCmd.Flags().StringVar(&theme, "theme", "thermal", "color theme (thermal, ocean, mono, retro)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check a config and the features its modules need",
		RunE:  validateSetup,
	}
	addSetupFlags(validateCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot step size and entity totals of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&entity, "entity", "", "plot a single entity")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json or csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "-", "output path ('-' for stdout)")
	exportCmd.Flags().Bool("csv", false, "export the trajectory as csv")
	exportCmd.Flags().String("svg", "", "render 'field' (last sample) or 'steps' as svg")
	exportCmd.Flags().StringVar(&entity, "entity", "", "entity of --svg field")
	exportCmd.Flags().StringVar(&theme, "theme", "thermal", "color theme of --svg field")

	presetsCmd := &cobra.Command{
		Use:   "presets [family]",
		Short: "list preset families or the presets of one family",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, f := range config.ListFamilies() {
					fmt.Printf("%s: %s\n", f, strings.Join(config.ListPresets(f), ", "))
				}
				return nil
			}
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for family: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modulesCmd := &cobra.Command{
		Use:   "modules",
		Short: "list module kinds usable in configs",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range experiment.NewRegistry().ListKinds() {
				fmt.Println(k)
			}
		},
	}

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search scheduler parameters minimizing a run metric",
		RunE:  tuneScheduler,
	}
	addSetupFlags(tuneCmd)
	tuneCmd.Flags().StringArray("param", nil, "parameter grid as name=v1,v2,... (repeatable)")
	tuneCmd.Flags().String("metric", "mean_local_error", "metric to minimize")

	rootCmd.AddCommand(runCmd, liveCmd, validateCmd, listCmd, plotCmd, exportCmd, presetsCmd, modulesCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSetupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset as family/name, e.g. diffusion/spot")
	cmd.Flags().IntVar(&epochs, "epochs", config.DefaultEpochs, "number of epochs")
	cmd.Flags().Float64Var(&duration, "time", 0, "simulated duration; overrides --epochs when set")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "local error tolerance")
	cmd.Flags().Float64Var(&initialStep, "step", 0, "initial time step")
	cmd.Flags().IntVar(&cols, "cols", config.DefaultCols, "grid columns")
	cmd.Flags().IntVar(&rows, "rows", config.DefaultRows, "grid rows")
	cmd.Flags().IntVar(&recordEvery, "record-every", config.DefaultRecordEvery, "keep every k-th epoch")
}

// loadConfig resolves the config from --config, --preset or the default and
// applies the flags given explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	case preset != "":
		family, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be family/name, got %q", preset)
		}
		p := config.GetPreset(family, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(family))
		}
		c := *p
		cfg = &c
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("epochs") {
		cfg.Epochs = epochs
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("epsilon") {
		cfg.Scheduler.Epsilon = epsilon
	}
	if flags.Changed("step") {
		cfg.Scheduler.InitialStep = initialStep
	}
	if flags.Changed("cols") {
		cfg.Grid.Cols = cols
	}
	if flags.Changed("rows") {
		cfg.Grid.Rows = rows
	}
	if flags.Changed("record-every") {
		cfg.RecordEvery = recordEvery
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (*experiment.Experiment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	exp := experiment.New(cfg)
	if err := exp.Setup(experiment.NewRegistry()); err != nil {
		return nil, err
	}
	return exp, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	exp, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg, sim := exp.Config(), exp.Simulation()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if traceOut != "" {
		tc := observability.DefaultTracingConfig()
		tc.Enabled = true
		if traceOut != "-" {
			tc.Exporter, tc.Path = "file", traceOut
		}
		shutdown, err := observability.InitTracing(ctx, tc)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(context.Background(), shutdown)
	}

	collector, err := observability.NewSchedulerCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	sim.AddObserver(collector)
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: collector.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		logrus.Infof("serving metrics on %s/metrics", metricsAddr)
	}

	ids := exp.Entities().IDs()
	nodes := make([]string, 0, len(sim.Nodes()))
	for _, n := range sim.Nodes() {
		nodes = append(nodes, n.ID())
	}
	rec := storage.NewRecorder(cfg.RecordEvery, nodes, ids)
	rec.Capture(sim.Snapshot())
	sim.AddObserver(rec)

	if watch && len(ids) > 0 {
		r := tui.NewLiveRenderer(os.Stdout, cfg.Name, exp.Grid(), ids[0], frameRate)
		r.Start()
		defer r.Stop()
		sim.AddObserver(r)
	}

	logrus.Infof("running %s on a %dx%d grid", cfg.Name, cfg.Grid.Cols, cfg.Grid.Rows)
	result, runErr := exp.Run(ctx)
	if runErr != nil {
		collector.IncFailures()
	}

	meta := storage.RunMetadata{
		Name:        cfg.Name,
		Cols:        cfg.Grid.Cols,
		Rows:        cfg.Grid.Rows,
		Epsilon:     cfg.Scheduler.Epsilon,
		Epochs:      result.Epochs,
		ElapsedTime: result.ElapsedTime,
		FinalStep:   result.FinalStep,
		Totals:      make(map[string]float64, len(result.Totals)),
		Metrics:     result.Metrics,
	}
	for _, id := range ids {
		meta.Entities = append(meta.Entities, string(id))
		meta.Totals[string(id)] = result.Totals[id]
	}
	for _, m := range sim.Modules() {
		meta.Modules = append(meta.Modules, m.ID())
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(meta, rec.Trajectory())
	if err != nil {
		return err
	}

	rowsOut := [][2]string{
		{"Run", runID},
		{"Epochs", fmt.Sprintf("%d", result.Epochs)},
		{"Time", fmt.Sprintf("%.6g", result.ElapsedTime)},
		{"Next step", fmt.Sprintf("%.3e", result.FinalStep)},
		{"Samples", fmt.Sprintf("%d", rec.Len())},
		{"Wall", result.Wall.Round(time.Millisecond).String()},
	}
	for _, id := range ids {
		rowsOut = append(rowsOut, [2]string{"Total " + string(id), fmt.Sprintf("%.6g", result.Totals[id])})
	}
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rowsOut = append(rowsOut, [2]string{name, fmt.Sprintf("%.4g", result.Metrics[name])})
	}
	fmt.Println(viz.Summary(cfg.Name, rowsOut))

	var epochErr *simulation.EpochError
	if errors.As(runErr, &epochErr) {
		return fmt.Errorf("run %s stopped at epoch %d in module %s: %w", runID, epochErr.Epoch, epochErr.Module, runErr)
	}
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	exp, err := setup(cmd)
	if err != nil {
		return err
	}

	m := viz.NewLiveModel(exp.Config().Name, exp.Simulation(), exp.Grid(), exp.Entities().IDs())
	m = m.WithTheme(theme)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}

func tuneScheduler(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	specs, _ := cmd.Flags().GetStringArray("param")
	metric, _ := cmd.Flags().GetString("metric")
	if len(specs) == 0 {
		return fmt.Errorf("at least one --param is required")
	}

	var names []string
	var ranges [][]float64
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("param must be name=v1,v2,..., got %q", spec)
		}
		var values []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return fmt.Errorf("param %s: %w", name, err)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	best, value, trials, err := g.Search(ctx, func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := optim.Apply(base, params)
		if err != nil {
			return nil, err
		}
		exp := experiment.New(cfg)
		if err := exp.Setup(experiment.NewRegistry()); err != nil {
			return nil, err
		}
		return exp, nil
	}, metric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PARAMS\t%s\tERROR\n", strings.ToUpper(metric))
	for _, tr := range trials {
		errText := ""
		if tr.Err != nil {
			errText = tr.Err.Error()
		}
		fmt.Fprintf(w, "%v\t%.4g\t%s\n", tr.Params, tr.Value, errText)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: %v (%s=%.4g)\n", best, metric, value)
	return nil
}

func validateSetup(cmd *cobra.Command, args []string) error {
	exp, err := setup(cmd)
	if err != nil {
		fmt.Println("invalid setup:")
		for _, line := range strings.Split(err.Error(), "; ") {
			fmt.Printf("  - %s\n", line)
		}
		return err
	}
	cfg := exp.Config()
	fmt.Printf("%s: %dx%d grid, %d entities, %d modules ok\n",
		cfg.Name, cfg.Grid.Cols, cfg.Grid.Rows, len(exp.Entities().IDs()), len(exp.Simulation().Modules()))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tGRID\tEPOCHS\tSIM TIME\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\t%.4g\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Cols, run.Rows,
			run.Epochs,
			run.ElapsedTime,
			status,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(traj.Samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("name: %s\n", meta.Name)
	fmt.Printf("samples: %d\n\n", len(traj.Samples))

	fmt.Println(viz.PlotSeries(traj.Steps(), 10, 80, "step size"))
	fmt.Println()

	names := meta.Entities
	if entity != "" {
		names = []string{entity}
	}
	for _, name := range names {
		totals := traj.EntityTotals(chem.EntityID(name))
		s := storage.Summarize(totals)
		fmt.Println(viz.PlotSeries(totals, 10, 80, fmt.Sprintf("total %s (min %.4g, max %.4g)", name, s.Min, s.Max)))
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	asCSV, _ := cmd.Flags().GetBool("csv")
	svgKind, _ := cmd.Flags().GetString("svg")
	switch {
	case svgKind != "":
		var doc string
		doc, err = renderSVG(svgKind, meta, traj)
		if err == nil {
			err = writeOutput(output, doc)
		}
	case asCSV:
		err = storage.ExportCSV(output, traj)
	default:
		err = storage.ExportJSON(output, *meta, traj)
	}
	if err != nil {
		return err
	}
	if output != "-" {
		fmt.Printf("exported %s to %s\n", runID, output)
	}
	return nil
}

func renderSVG(kind string, meta *storage.RunMetadata, traj *storage.Trajectory) (string, error) {
	if len(traj.Samples) == 0 {
		return "", fmt.Errorf("no data to render")
	}
	switch kind {
	case "steps":
		return export.SeriesToSVG(traj.Times(), traj.Steps(), 800, 300, "#00ff88"), nil
	case "field":
		grid, err := graph.NewGrid(meta.Cols, meta.Rows, 1)
		if err != nil {
			return "", err
		}
		name := entity
		if name == "" && len(meta.Entities) > 0 {
			name = meta.Entities[0]
		}
		snap, err := traj.Snapshot(len(traj.Samples) - 1)
		if err != nil {
			return "", err
		}
		field := viz.FieldFromSnapshot(grid, snap, chem.EntityID(name))
		return export.FieldToSVG(field, viz.ThemeByName(theme), 16), nil
	default:
		return "", fmt.Errorf("unknown svg kind %q (field, steps)", kind)
	}
}

func writeOutput(path, content string) error {
	if path == "-" {
		_, err := fmt.Println(content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

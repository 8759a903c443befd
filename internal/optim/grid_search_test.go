package optim

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rdsim/internal/config"
	"github.com/san-kum/rdsim/internal/experiment"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Grid = config.GridConfig{Cols: 5, Rows: 5, Spacing: 1}
	cfg.Initial[0].Spikes = []config.SpikeConfig{{Col: 2, Row: 2, Value: 1}}
	cfg.Epochs = 5
	return cfg
}

func builder(base *config.Config) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return nil, err
		}
		e := experiment.New(cfg)
		if err := e.Setup(experiment.NewRegistry()); err != nil {
			return nil, err
		}
		return e, nil
	}
}

func TestApply(t *testing.T) {
	base := baseConfig()
	before := base.Scheduler
	cfg, err := Apply(base, map[string]float64{
		"epsilon":      0.02,
		"initial_step": 0.5,
		"min_step":     1e-6,
		"max_retries":  7,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.02, cfg.Scheduler.Epsilon)
	assert.Equal(t, 0.5, cfg.Scheduler.InitialStep)
	assert.Equal(t, 1e-6, cfg.Scheduler.MinStep)
	assert.Equal(t, 7, cfg.Scheduler.MaxRetries)
	assert.Equal(t, before, base.Scheduler)

	_, err = Apply(base, map[string]float64{"max_retries": 2.5})
	assert.ErrorContains(t, err, "must be an integer")

	_, err = Apply(base, map[string]float64{"bogus": 1})
	assert.ErrorContains(t, err, "unknown scheduler parameter")
}

func TestNewGridSearch(t *testing.T) {
	_, err := NewGridSearch([]string{"epsilon"}, nil)
	assert.Error(t, err)
	_, err = NewGridSearch([]string{"bogus"}, [][]float64{{1}})
	assert.Error(t, err)
	_, err = NewGridSearch([]string{"epsilon"}, [][]float64{{}})
	assert.Error(t, err)
}

func TestGridSearch_MinimizesMetric(t *testing.T) {
	g, err := NewGridSearch([]string{"initial_step"}, [][]float64{{0.001, 0.01, 0.05}})
	require.NoError(t, err)

	// the mean step is smallest for the smallest starting step
	best, val, trials, err := g.Search(context.Background(), builder(baseConfig()), "mean_step")
	require.NoError(t, err)
	assert.Len(t, trials, 3)
	assert.Equal(t, 0.001, best["initial_step"])
	assert.Greater(t, val, 0.0)
}

func TestGridSearch_SkipsFailedRuns(t *testing.T) {
	g, err := NewGridSearch([]string{"epsilon", "initial_step"}, [][]float64{{-1, 0.01}, {0.01}})
	require.NoError(t, err)

	best, _, trials, err := g.Search(context.Background(), builder(baseConfig()), "acceptance")
	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Error(t, trials[0].Err)
	assert.True(t, math.IsNaN(trials[0].Value))
	assert.Equal(t, 0.01, best["epsilon"])
}

func TestGridSearch_NoSuccess(t *testing.T) {
	g, err := NewGridSearch([]string{"epsilon"}, [][]float64{{-1}})
	require.NoError(t, err)

	_, _, _, err = g.Search(context.Background(), builder(baseConfig()), "acceptance")
	assert.ErrorContains(t, err, "no successful run")

	g, err = NewGridSearch([]string{"epsilon"}, [][]float64{{0.01}})
	require.NoError(t, err)
	_, _, _, err = g.Search(context.Background(), builder(baseConfig()), "missing")
	assert.ErrorContains(t, err, "unknown metric")
}

func TestGridSearch_Cancelled(t *testing.T) {
	g, err := NewGridSearch([]string{"epsilon"}, [][]float64{{0.01, 0.001}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, trials, err := g.Search(ctx, builder(baseConfig()), "acceptance")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, trials)
}

package config

import "sort"

func withDefaults(c *Config) *Config {
	if c.Scheduler == (SchedulerConfig{}) {
		c.Scheduler = DefaultScheduler()
	}
	if c.RecordEvery == 0 {
		c.RecordEvery = DefaultRecordEvery
	}
	return c
}

func spike(col, row int, v float64) []SpikeConfig {
	return []SpikeConfig{{Col: col, Row: row, Value: v}}
}

// Presets groups ready-made setups by family. Initial fields carry a
// non-zero baseline so relative errors stay finite away from the spikes.
var Presets = map[string]map[string]*Config{
	"diffusion": {
		"spot": DefaultConfig(),
		"wide": withDefaults(&Config{
			Name: "wide",
			Grid: GridConfig{Cols: 32, Rows: 8, Spacing: 0.5},
			Entities: []EntityConfig{
				{ID: "A", Features: map[string]float64{"diffusivity": 0.05}},
			},
			Initial: []InitialConfig{{Entity: "A", Baseline: 0.5, Spikes: spike(4, 4, 2)}},
			Modules: []ModuleConfig{{Kind: "diffusion", Entities: []string{"A"}}},
			Epochs:  300,
		}),
		"pair": withDefaults(&Config{
			Name: "pair",
			Grid: GridConfig{Cols: 12, Rows: 12, Spacing: 1},
			Entities: []EntityConfig{
				{ID: "A", Features: map[string]float64{"diffusivity": 0.2}},
				{ID: "B", Features: map[string]float64{"diffusivity": 0.02}},
			},
			Initial: []InitialConfig{
				{Entity: "A", Baseline: 1, Spikes: spike(3, 3, 3)},
				{Entity: "B", Baseline: 1, Spikes: spike(8, 8, 3)},
			},
			Modules: []ModuleConfig{{Kind: "diffusion", Entities: []string{"A", "B"}}},
			Epochs:  250,
		}),
	},
	"reaction": {
		"decay": withDefaults(&Config{
			Name: "decay",
			Grid: GridConfig{Cols: 4, Rows: 4, Spacing: 1},
			Entities: []EntityConfig{
				{ID: "A", Features: map[string]float64{"rate_constant": 0.5}},
				{ID: "B", Features: map[string]float64{"degradation_rate": 0.1}},
			},
			Initial: []InitialConfig{{Entity: "A", Baseline: 2}, {Entity: "B", Baseline: 0.1}},
			Modules: []ModuleConfig{
				{Kind: "conversion", Entities: []string{"A", "B"}},
				{Kind: "degradation", Entities: []string{"B"}},
			},
			Epochs: 150,
		}),
		"binding": withDefaults(&Config{
			Name: "binding",
			Grid: GridConfig{Cols: 4, Rows: 4, Spacing: 1},
			Entities: []EntityConfig{
				{ID: "L"},
				{ID: "R"},
				{ID: "LR", Features: map[string]float64{"rate_constant": 2, "backward_rate_constant": 0.5}},
			},
			Initial: []InitialConfig{{Entity: "L", Baseline: 1}, {Entity: "R", Baseline: 0.6}, {Entity: "LR", Baseline: 0.01}},
			Modules: []ModuleConfig{{Kind: "binding", Entities: []string{"L", "R", "LR"}}},
			Epochs:  200,
		}),
	},
	"mixed": {
		"front": withDefaults(&Config{
			Name: "front",
			Grid: GridConfig{Cols: 20, Rows: 6, Spacing: 1},
			Entities: []EntityConfig{
				{ID: "S", Features: map[string]float64{"diffusivity": 0.3, "rate_constant": 0.2}},
				{ID: "P", Features: map[string]float64{"diffusivity": 0.05, "degradation_rate": 0.05}},
			},
			Initial: []InitialConfig{
				{Entity: "S", Baseline: 0.2, Spikes: spike(2, 3, 5)},
				{Entity: "P", Baseline: 0.05},
			},
			Modules: []ModuleConfig{
				{Kind: "diffusion", Entities: []string{"S", "P"}},
				{Kind: "conversion", Entities: []string{"S", "P"}},
				{Kind: "degradation", Entities: []string{"P"}},
			},
			Epochs: 400,
		}),
	},
}

func GetPreset(family, preset string) *Config {
	familyPresets, ok := Presets[family]
	if !ok {
		return nil
	}
	cfg, ok := familyPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(family string) []string {
	familyPresets, ok := Presets[family]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(familyPresets))
	for name := range familyPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListFamilies() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package viz

import "github.com/charmbracelet/lipgloss"

// Theme is the color ramp of a heatmap plus accents for the side panel.
type Theme struct {
	Name   string
	Low    lipgloss.Color
	High   lipgloss.Color
	Accent lipgloss.Color
	Muted  lipgloss.Color
}

var (
	ThemeThermal = Theme{
		Name:   "thermal",
		Low:    lipgloss.Color("#1a0033"),
		High:   lipgloss.Color("#ffcc00"),
		Accent: lipgloss.Color("#ff6600"),
		Muted:  lipgloss.Color("#666666"),
	}

	ThemeOcean = Theme{
		Name:   "ocean",
		Low:    lipgloss.Color("#001a33"),
		High:   lipgloss.Color("#00ffcc"),
		Accent: lipgloss.Color("#0088ff"),
		Muted:  lipgloss.Color("#336688"),
	}

	ThemeMono = Theme{
		Name:   "mono",
		Low:    lipgloss.Color("#202020"),
		High:   lipgloss.Color("#ffffff"),
		Accent: lipgloss.Color("#0088ff"),
		Muted:  lipgloss.Color("#888888"),
	}

	ThemeRetro = Theme{
		Name:   "retro",
		Low:    lipgloss.Color("#001100"),
		High:   lipgloss.Color("#88ff88"),
		Accent: lipgloss.Color("#00ff00"),
		Muted:  lipgloss.Color("#005500"),
	}
)

var Themes = []Theme{ThemeThermal, ThemeOcean, ThemeMono, ThemeRetro}

// ThemeByName falls back to the first theme for unknown names.
func ThemeByName(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return Themes[0]
}

// Color returns the ramp color at f in [0, 1].
func (t Theme) Color(f float64) lipgloss.Color {
	return lerpColor(t.Low, t.High, f)
}

package report

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used for terminal status output.
type Theme struct {
	Title   lipgloss.Color // section headings
	Pass    lipgloss.Color // threshold met
	Fail    lipgloss.Color // threshold missed
	Warning lipgloss.Color // parse errors, recall drops
	Muted   lipgloss.Color // labels and hints
}

// DarkTheme returns the default theme for dark terminal backgrounds.
func DarkTheme() Theme {
	return Theme{
		Title:   lipgloss.Color("#fab283"),
		Pass:    lipgloss.Color("#7fd88f"),
		Fail:    lipgloss.Color("#e06c75"),
		Warning: lipgloss.Color("#f5a742"),
		Muted:   lipgloss.Color("#808080"),
	}
}

// LightTheme returns a theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Title:   lipgloss.Color("#b35c00"),
		Pass:    lipgloss.Color("#116329"),
		Fail:    lipgloss.Color("#cf222e"),
		Warning: lipgloss.Color("#bf8700"),
		Muted:   lipgloss.Color("#656d76"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

type styles struct {
	title lipgloss.Style
	pass  lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(t.Title),
		pass:  lipgloss.NewStyle().Bold(true).Foreground(t.Pass),
		fail:  lipgloss.NewStyle().Bold(true).Foreground(t.Fail),
		warn:  lipgloss.NewStyle().Foreground(t.Warning),
		dim:   lipgloss.NewStyle().Foreground(t.Muted),
	}
}

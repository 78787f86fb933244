package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	root       lipgloss.Style
	header     lipgloss.Style
	demoBadge  lipgloss.Style
	stageDone  lipgloss.Style
	stageTodo  lipgloss.Style
	user       lipgloss.Style
	assistant  lipgloss.Style
	annotation lipgloss.Style
	affordance lipgloss.Style
	confirmed  lipgloss.Style
	warning    lipgloss.Style
	suggestion lipgloss.Style
	inputPanel lipgloss.Style
	helpText   lipgloss.Style
	status     lipgloss.Style
}

func newTheme() theme {
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	amber := lipgloss.Color("#ffd166")
	muted := lipgloss.Color("#8f8fa3")

	return theme{
		root: lipgloss.NewStyle().Padding(0, 1),
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(blue).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(muted),
		demoBadge:  lipgloss.NewStyle().Foreground(amber).Bold(true),
		stageDone:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		stageTodo:  lipgloss.NewStyle().Foreground(muted),
		user:       lipgloss.NewStyle().Foreground(mint).Bold(true),
		assistant:  lipgloss.NewStyle().Foreground(pink).Bold(true),
		annotation: lipgloss.NewStyle().Foreground(amber).Italic(true),
		affordance: lipgloss.NewStyle().Foreground(blue).PaddingLeft(2),
		confirmed:  lipgloss.NewStyle().Foreground(mint).Bold(true).PaddingLeft(2),
		warning:    lipgloss.NewStyle().Foreground(pink).PaddingLeft(2),
		suggestion: lipgloss.NewStyle().Foreground(muted),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),
		status:   lipgloss.NewStyle().Foreground(blue),
	}
}

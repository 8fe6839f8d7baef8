package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#3498DB")
	mutedColor  = lipgloss.Color("#7B8794")
	errorColor  = lipgloss.Color("#E74C3C")

	titleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	topicStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F39C12")).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#2C3E50")).
			Foreground(lipgloss.Color("#ECF0F1")).
			Padding(0, 1)
)

package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent = lipgloss.Color("39")
	ColorGray   = lipgloss.Color("244")
	ColorGreen  = lipgloss.Color("42")
	ColorRed    = lipgloss.Color("196")
	ColorOrange = lipgloss.Color("208")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	sectionTitleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle        = lipgloss.NewStyle().Foreground(ColorGray)
	okStyle           = lipgloss.NewStyle().Foreground(ColorGreen)
	failStyle         = lipgloss.NewStyle().Foreground(ColorRed)
	warnStyle         = lipgloss.NewStyle().Foreground(ColorOrange)
	helpStyle         = lipgloss.NewStyle().Foreground(ColorGray)
)

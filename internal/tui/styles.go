package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#2563EB")).
			Padding(0, 1)
	subtitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")).PaddingLeft(1)
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563EB"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#16A34A"))
	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bodyStyle      = lipgloss.NewStyle().PaddingLeft(2)
	thinkingStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
)

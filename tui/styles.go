package tui

import (
	"github.com/charmbracelet/lipgloss"

	"kanflow/domain"
)

var (
	colorBorder  = lipgloss.Color("240")
	colorActive  = lipgloss.Color("10")
	colorMuted   = lipgloss.Color("244")
	colorAccent  = lipgloss.Color("205")
	colorError   = lipgloss.Color("1")
	colorSelectF = lipgloss.Color("229")
	colorSelectB = lipgloss.Color("57")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).PaddingLeft(1)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	columnActiveStyle = columnStyle.BorderForeground(colorActive)

	columnTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	cardStyle     = lipgloss.NewStyle()
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSelectF).Background(colorSelectB)
	draggingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorActive).Reverse(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)

	toastStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("235")).Padding(0, 1)
	toastErrorStyle = toastStyle.Foreground(colorError)
)

var priorityStyles = map[domain.Priority]lipgloss.Style{
	domain.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	domain.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	domain.PriorityLow:    lipgloss.NewStyle().Foreground(colorMuted),
}

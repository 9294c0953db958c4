package main

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.Color("#50C878")
	colorError   = lipgloss.Color("#FF6961")
	colorMuted   = lipgloss.Color("#808080")
	colorTitle   = lipgloss.Color("#C4B5FD")
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleErr    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(colorMuted)
	styleLabel  = lipgloss.NewStyle().Width(10)
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
)

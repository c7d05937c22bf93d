// Package ui provides the Bubble Tea dashboard for savings runs.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette. The primary aggregator is always drawn in accent purple; green
// and red follow the sign of the savings.
var (
	ColorAccent  = lipgloss.Color("#7C3AED")
	ColorSavings = lipgloss.Color("#10B981")
	ColorLoss    = lipgloss.Color("#EF4444")
	ColorDim     = lipgloss.Color("#6B7280")
	ColorFrame   = lipgloss.Color("#374151")
)

var (
	PanelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorFrame).Padding(0, 1)
	BannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(ColorAccent).Padding(0, 2)
	HeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	RunOKStyle     = lipgloss.NewStyle().Foreground(ColorSavings).Bold(true)
	RunFailedStyle = lipgloss.NewStyle().Foreground(ColorLoss).Bold(true)
	ErrorTextStyle = lipgloss.NewStyle().Foreground(ColorLoss)

	DimStyle  = lipgloss.NewStyle().Foreground(ColorDim)
	KeysStyle = lipgloss.NewStyle().Foreground(ColorDim).Padding(0, 1)
)

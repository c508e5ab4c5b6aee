package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorSuccess = lipgloss.Color("#10B981") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorInfo    = lipgloss.Color("#3B82F6") // Blue

	ColorApproved  = lipgloss.Color("#10B981") // Green
	ColorRequested = lipgloss.Color("#EF4444") // Red
	ColorPending   = lipgloss.Color("#F59E0B") // Amber

	ColorText      = lipgloss.Color("#F3F4F6") // Light gray
	ColorTextMuted = lipgloss.Color("#9CA3AF") // Gray
	ColorBorder    = lipgloss.Color("#374151") // Medium gray
)

// Message styles
var (
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoldStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)
)

// Table styles for the pull request listing
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorText)

	TableCellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	TableBorderStyle = lipgloss.NewStyle().
				Foreground(ColorBorder)
)

// ReviewStatusStyle returns the style for a review decision string.
func ReviewStatusStyle(status string) lipgloss.Style {
	switch status {
	case "approved":
		return lipgloss.NewStyle().Foreground(ColorApproved).Bold(true)
	case "changes requested":
		return lipgloss.NewStyle().Foreground(ColorRequested).Bold(true)
	case "pending":
		return lipgloss.NewStyle().Foreground(ColorPending)
	default:
		return DimStyle
	}
}

// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, footers, log tail

	// Semantic color names - Status
	StatusPendingColor = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#777777"}
	StatusRunningColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#54A0FF"}
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	// Loading spinner color
	SpinnerColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#FFF"}

	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)
	SecondaryStyle = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	MutedStyle     = lipgloss.NewStyle().Foreground(TextMutedColor)

	PendingStyle = lipgloss.NewStyle().Foreground(StatusPendingColor)
	RunningStyle = lipgloss.NewStyle().Foreground(StatusRunningColor).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(StatusSuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(StatusWarningColor)
	FailedStyle  = lipgloss.NewStyle().Foreground(StatusErrorColor)

	SpinnerStyle = lipgloss.NewStyle().Foreground(SpinnerColor)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true).
			Padding(1, 2)

	// Boxed summary under a finished run
	SummaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(TextMutedColor).
			Padding(0, 1)
)

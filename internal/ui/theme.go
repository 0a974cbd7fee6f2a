package ui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#34D399", Light: "#047857"}
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#60A5FA", Light: "#1D4ED8"}
	ColorAmber  = lipgloss.AdaptiveColor{Dark: "#FBBF24", Light: "#B45309"}
	ColorSky    = lipgloss.AdaptiveColor{Dark: "#38BDF8", Light: "#0369A1"}
	ColorViolet = lipgloss.AdaptiveColor{Dark: "#A78BFA", Light: "#6D28D9"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#F87171", Light: "#B91C1C"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#9CA3AF", Light: "#4B5563"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#4B5563", Light: "#D1D5DB"}
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true)

	LabelStyle = lipgloss.NewStyle().Foreground(ColorGray)

	WarnStyle = lipgloss.NewStyle().Foreground(ColorAmber)

	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorGray).PaddingRight(2)

	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// badgeColors maps job, run and connection states to a colour.
// Unknown states render like CANCELLED.
var badgeColors = map[string]lipgloss.AdaptiveColor{
	"ACTIVE":       ColorGreen,
	"CONNECTED":    ColorGreen,
	"SUCCESS":      ColorGreen,
	"COMPLETED":    ColorBlue,
	"PAUSED":       ColorAmber,
	"QUEUED":       ColorSky,
	"PROCESSING":   ColorViolet,
	"FAILED":       ColorRed,
	"CANCELLED":    ColorGray,
	"DISCONNECTED": ColorRed,
	"RETRYING":     ColorAmber,
}

// live states get a filled dot
var liveStates = map[string]bool{
	"ACTIVE":     true,
	"PROCESSING": true,
	"CONNECTED":  true,
}

// BadgeColor returns the colour used for status
func BadgeColor(status string) lipgloss.AdaptiveColor {
	if c, ok := badgeColors[status]; ok {
		return c
	}
	return badgeColors["CANCELLED"]
}

// Badge renders status as a coloured label
func Badge(status string) string {
	dot := "○"
	if liveStates[status] {
		dot = "●"
	}
	return lipgloss.NewStyle().Foreground(BadgeColor(status)).Render(dot + " " + status)
}

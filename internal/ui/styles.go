// Package ui provides terminal styling for the rebase tool's CLI output.
// Adaptive light/dark colors; rendering degrades to plain text when the
// terminal has no color support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic status colors, adaptive to terminal background.
var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2da44e", Dark: "#57d9a3"}
	ColorWarn    = lipgloss.AdaptiveColor{Light: "#bf8700", Dark: "#ffb454"}
	ColorFail    = lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f07178"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#6c7680"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#59c2ff"}
)

// Status styles shared across commands.
var (
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarnStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle    = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle  = lipgloss.NewStyle().Foreground(ColorAccent)
	HeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	// Deployment badges.
	BootedBadge = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	PinnedBadge = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
)

// Status icons.
const (
	IconOK   = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "ℹ"
)

// HasColor reports whether the attached terminal supports color at all.
func HasColor() bool {
	return termenv.ColorProfile() != termenv.Ascii
}

// DisableColor forces plain-text rendering for the rest of the process.
func DisableColor() {
	r := lipgloss.DefaultRenderer()
	r.SetColorProfile(termenv.Ascii)
}

// RenderError renders an error line with the failure icon.
func RenderError(s string) string {
	return FailStyle.Render(IconFail + " " + s)
}

// RenderSuccess renders text in the success (green) style.
func RenderSuccess(s string) string { return SuccessStyle.Render(s) }

// RenderWarn renders text in the warning (yellow) style.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail renders text in the failure (red) style.
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderMuted renders text in the muted (gray) style.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderHeading renders a bold section heading.
func RenderHeading(s string) string { return HeadingStyle.Render(s) }

// RenderBadges renders deployment badges ("Currently Booted, Pinned") with
// per-badge styling.
func RenderBadges(status string) string {
	parts := strings.Split(status, ", ")
	for i, p := range parts {
		switch p {
		case "Currently Booted":
			parts[i] = BootedBadge.Render(p)
		case "Pinned":
			parts[i] = PinnedBadge.Render(p)
		default:
			parts[i] = MutedStyle.Render(p)
		}
	}
	return strings.Join(parts, ", ")
}

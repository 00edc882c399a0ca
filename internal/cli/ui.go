// Package cli provides styling helpers for human output.
package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/Enntity/pulse/internal/models"
)

var (
	styleCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleSkipped   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleMuted     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleHeader    = lipgloss.NewStyle().Bold(true)
)

func colorEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if noColor {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return true
}

func render(style lipgloss.Style, text string) string {
	if !colorEnabled() {
		return text
	}
	return style.Render(text)
}

func renderStatus(status models.PulseStatus) string {
	text := string(status)
	switch status {
	case models.PulseStatusCompleted:
		return render(styleCompleted, text)
	case models.PulseStatusFailed:
		return render(styleFailed, text)
	case models.PulseStatusSkipped:
		return render(styleSkipped, text)
	case models.PulseStatusInProgress:
		return render(styleRunning, text)
	}
	return render(styleMuted, text)
}

func renderEnabled(enabled bool) string {
	if enabled {
		return render(styleCompleted, "enabled")
	}
	return render(styleMuted, "disabled")
}

func renderHeader(text string) string {
	return render(styleHeader, text)
}

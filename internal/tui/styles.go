// Package tui holds the terminal styling shared by the CLI subcommands.
// Everything degrades to plain text when color is unwanted or unavailable.
package tui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/xde-mcp/cmdgate/internal/types"
)

// plainMode disables all styling: no colors, no icons.
var (
	plainMode bool
	plainOnce sync.Once
	plainMu   sync.RWMutex
)

// initPlainMode auto-detects plain mode on first call.
// Precedence: NO_COLOR > TTY detection > color profile.
func initPlainMode() {
	plainOnce.Do(func() {
		// https://no-color.org
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			plainMode = true
			return
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // Fd() fits in int on all supported platforms
			plainMode = true
			return
		}
		if termenv.NewOutput(os.Stdout).ColorProfile() == termenv.Ascii {
			plainMode = true
		}
	})
}

// SetPlainMode explicitly enables or disables plain mode.
// Call this early (e.g. when parsing --no-color) before any output.
func SetPlainMode(plain bool) {
	plainMu.Lock()
	defer plainMu.Unlock()
	plainMode = plain
	// Mark as initialized so auto-detect doesn't override
	plainOnce.Do(func() {})
}

// IsPlainMode returns true if styling is disabled.
func IsPlainMode() bool {
	initPlainMode()
	plainMu.RLock()
	defer plainMu.RUnlock()
	return plainMode
}

// Color palette. Adapts to the terminal background.
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#2F5D8A", Dark: "#7AA2D6"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#3F7A3A", Dark: "#A3BE8C"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#B5382A", Dark: "#E06C5A"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#9A6B00", Dark: "#EBCB8B"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#2F6F7A", Dark: "#88C0D0"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9AA0A6"}
)

// Reusable styles.
var (
	StyleTitle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleBold    = lipgloss.NewStyle().Bold(true)
	StyleCommand = lipgloss.NewStyle().Foreground(ColorPrimary)

	stylePrefix = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
)

// Prefix returns the branded [cmdgate] prefix string.
func Prefix() string {
	if IsPlainMode() {
		return "[cmdgate]"
	}
	return stylePrefix.Render("[cmdgate]")
}

// SeverityStyle returns the style for a lint severity level.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "error":
		return StyleError
	case "warning":
		return StyleWarning
	case "info":
		return StyleInfo
	default:
		return StyleMuted
	}
}

// SeverityBadge returns a styled severity badge like "▪ ERROR".
func SeverityBadge(severity string) string {
	label := severityLabel(severity)
	if IsPlainMode() {
		return "[" + label + "]"
	}
	return SeverityStyle(severity).Render(IconSquare + " " + label)
}

func severityLabel(severity string) string {
	switch severity {
	case "error":
		return "ERROR"
	case "warning":
		return "WARNING"
	case "info":
		return "INFO"
	default:
		return severity
	}
}

// VerdictBadge renders a classifier verdict for the check command.
func VerdictBadge(v types.Verdict) string {
	label := string(v)
	if IsPlainMode() {
		return label
	}
	switch v {
	case types.VerdictAllow:
		return StyleSuccess.Render(IconCheck + " " + label)
	case types.VerdictDeny:
		return StyleError.Render(IconBlock + " " + label)
	case types.VerdictAsk:
		return StyleWarning.Render(IconWarning + " " + label)
	}
	return StyleMuted.Render(IconCircle + " " + label)
}

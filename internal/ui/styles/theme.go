// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Mode selects which half of each AdaptiveColor is used.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeDark  Mode = "dark"
	ModeLight Mode = "light"
)

// ParseMode parses a theme name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeDark, ModeLight:
		return m, nil
	default:
		return ModeAuto, fmt.Errorf("unknown theme %q (want dark, light or auto)", s)
	}
}

// Theme holds the styles of the host program, bound to one renderer.
type Theme struct {
	Renderer *lipgloss.Renderer
	Mode     Mode

	Prompt    lipgloss.Style
	UserLabel lipgloss.Style
	AILabel   lipgloss.Style
	Timestamp lipgloss.Style
	Muted     lipgloss.Style
	Heading   lipgloss.Style
	Indicator lipgloss.Style

	ErrorText   lipgloss.Style
	WarningText lipgloss.Style
	SuccessText lipgloss.Style
	InfoText    lipgloss.Style
}

// NewTheme builds a theme writing to w. profile overrides colour detection
// when non-nil; termenv.Ascii yields escape-free output.
func NewTheme(w io.Writer, mode Mode, profile *termenv.Profile) *Theme {
	r := lipgloss.NewRenderer(w)
	if profile != nil {
		r.SetColorProfile(*profile)
	}
	switch mode {
	case ModeDark:
		r.SetHasDarkBackground(true)
	case ModeLight:
		r.SetHasDarkBackground(false)
	}

	t := &Theme{Renderer: r, Mode: mode}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	s := t.Renderer.NewStyle

	t.Prompt = s().Foreground(Cyan).Bold(true)
	t.UserLabel = s().Foreground(Cyan).Bold(true)
	t.AILabel = s().Foreground(Purple).Bold(true)
	t.Timestamp = s().Foreground(TextMuted)
	t.Muted = s().Foreground(TextMuted)
	t.Heading = s().Foreground(TextSecondary).Bold(true)
	t.Indicator = s().Foreground(Amber)

	t.ErrorText = s().Foreground(Rose).Bold(true)
	t.WarningText = s().Foreground(Amber).Bold(true)
	t.SuccessText = s().Foreground(Emerald).Bold(true)
	t.InfoText = s().Foreground(Cyan)
}

// =============================================================================
// STATUS HELPERS
// =============================================================================

// Error renders msg with the error indicator.
func (t *Theme) Error(msg string) string {
	return t.ErrorText.Render(StatusIndicators.Error + " " + msg)
}

// Warning renders msg with the warning indicator.
func (t *Theme) Warning(msg string) string {
	return t.WarningText.Render(StatusIndicators.Warning + " " + msg)
}

// Success renders msg with the success indicator.
func (t *Theme) Success(msg string) string {
	return t.SuccessText.Render(StatusIndicators.Success + " " + msg)
}

// Info renders msg with the info indicator.
func (t *Theme) Info(msg string) string {
	return t.InfoText.Render(StatusIndicators.Info + " " + msg)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// FRAME GLYPHS
// =============================================================================

const (
	frameTop    = "╭─ "
	frameGutter = "│ "
	frameBottom = "╰─"

	// thinkingTitle heads a thinking frame.
	thinkingTitle = "thinking"

	// defaultLanguage is shown for a code block without a label.
	defaultLanguage = "text"
)

// =============================================================================
// STYLES
// =============================================================================

// Styles holds the per-kind styles. They are applied one line at a time so
// multi-line text is never padded.
type Styles struct {
	Plain    lipgloss.Style
	Thinking lipgloss.Style
	Code     lipgloss.Style

	// Frame draws the header, gutter and footer of framed regions.
	Frame lipgloss.Style
	// Label draws the title inside a frame header.
	Label lipgloss.Style
}

// DefaultStyles returns the colour styles bound to r. A nil renderer uses
// the lipgloss default.
func DefaultStyles(r *lipgloss.Renderer) Styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return Styles{
		Plain:    base,
		Thinking: base.Foreground(styles.TextMuted).Italic(true),
		Code:     base.Foreground(styles.TextPrimary),
		Frame:    base.Foreground(styles.Overlay),
		Label:    base.Foreground(styles.Purple).Bold(true),
	}
}

// PlainStyles returns styles that emit no escape sequences at all.
func PlainStyles() Styles {
	return DefaultStyles(lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.Ascii)))
}

// paint applies st to every line of s separately. Empty lines stay empty.
func paint(st lipgloss.Style, s string) string {
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "\n") {
		return st.Render(s)
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = st.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// RenderPlain returns text as the renderer draws a plain segment.
func (s Styles) RenderPlain(text string) string {
	return paint(s.Plain, text)
}

func (s Styles) header(title string) string {
	return s.Frame.Render(strings.TrimSpace(frameTop)) + " " + s.Label.Render(title)
}

func (s Styles) gutter() string {
	return s.Frame.Render(strings.TrimRight(frameGutter, " ")) + " "
}

func (s Styles) footer() string {
	return s.Frame.Render(frameBottom)
}

// forKind picks the text style for a segment kind.
func (s Styles) forKind(k stream.Kind) lipgloss.Style {
	switch k {
	case stream.KindThinking:
		return s.Thinking
	case stream.KindCode:
		return s.Code
	default:
		return s.Plain
	}
}

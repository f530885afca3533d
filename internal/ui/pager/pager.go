// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pager shows the chat history in a scrollable full-screen view.
// Each AI reply goes through the same final render pass as a live turn.
package pager

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/history"
	"github.com/jeranaias/rigchat/internal/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// RendererFunc returns a renderer writing to w that wraps at width.
type RendererFunc func(w io.Writer, width int) *render.Renderer

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript formats turns for a terminal width columns wide. Turns are
// numbered from first, so a tail of the log keeps its real numbers.
func Transcript(turns []history.Turn, first int, theme *styles.Theme, newRenderer RendererFunc, width int) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		WriteTurn(&b, first+i, t, theme, newRenderer, width)
	}
	return b.String()
}

// WriteTurn writes one numbered turn: a heading, the user message and the
// rendered reply.
func WriteTurn(w io.Writer, n int, t history.Turn, theme *styles.Theme, newRenderer RendererFunc, width int) {
	heading := fmt.Sprintf("#%d  %s", n, t.Time.Format(history.TimeFormat))
	fmt.Fprintln(w, theme.Heading.Render(heading))
	fmt.Fprintf(w, "%s %s\n", theme.UserLabel.Render("User:"), t.User)
	fmt.Fprintln(w, theme.AILabel.Render("AI:"))

	var buf bytes.Buffer
	r := newRenderer(&buf, width)
	if err := r.Render(t.AI); err != nil {
		fmt.Fprintln(w, theme.Error(err.Error()))
		return
	}
	if r.LineOpen() {
		buf.WriteString("\n")
	}
	_, _ = w.Write(buf.Bytes())
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model of the pager.
type Model struct {
	turns       []history.Turn
	first       int
	title       string
	theme       *styles.Theme
	newRenderer RendererFunc

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	ready    bool
	width    int
}

// New creates a pager over turns.
func New(title string, turns []history.Turn, theme *styles.Theme, newRenderer RendererFunc) Model {
	return Model{
		turns:       turns,
		first:       1,
		title:       title,
		theme:       theme,
		newRenderer: newRenderer,
		keys:        DefaultKeyMap(),
		help:        help.New(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		// Replies wrap differently at a new width, so render again.
		if msg.Width != m.width {
			m.width = msg.Width
			m.viewport.SetContent(m.content())
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case !m.ready:
			return m, nil
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) content() string {
	if len(m.turns) == 0 {
		return m.theme.Muted.Render("No history yet.")
	}
	return Transcript(m.turns, m.first, m.theme, m.newRenderer, m.width)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	header := m.theme.Heading.Render(fmt.Sprintf("%s (%d turns)", m.title, len(m.turns)))
	footer := fmt.Sprintf("%s  %3.f%%", m.help.ShortHelpView(m.keys.ShortHelp()), m.viewport.ScrollPercent()*100)
	return header + "\n" + m.viewport.View() + "\n" + footer
}

// Run shows the pager on the alternate screen until the user quits.
func Run(m Model, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := p.Run()
	return err
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// PHASES
// =============================================================================

// Phase is the renderer's position in a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseErasing
	PhaseFinalRender
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseErasing:
		return "erasing"
	case PhaseFinalRender:
		return "final"
	default:
		return "unknown"
	}
}

// ErrPhase is returned when a renderer method is called out of turn order.
var ErrPhase = errors.New("render: call out of phase")

func phaseError(op string, p Phase) error {
	return fmt.Errorf("%w: %s during %s", ErrPhase, op, p)
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer draws one turn at a time. It is driven from a single goroutine.
type Renderer struct {
	w      io.Writer
	width  WidthSource
	styles Styles
	logger *slog.Logger

	highlight     bool
	markdown      bool
	markdownTheme string
	newlineToken  string

	phase  Phase
	ledger EraseLedger
	live   painter

	// lineOpen is true when the last write left the cursor mid-line.
	lineOpen bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWidth sets the width source used for erase and markdown wrapping.
func WithWidth(ws WidthSource) Option {
	return func(r *Renderer) {
		if ws != nil {
			r.width = ws
		}
	}
}

// WithStyles sets the per-kind styles.
func WithStyles(st Styles) Option {
	return func(r *Renderer) {
		r.styles = st
	}
}

// WithHighlighting enables chroma highlighting of code blocks in the final
// render.
func WithHighlighting(on bool) Option {
	return func(r *Renderer) {
		r.highlight = on
	}
}

// WithMarkdown enables glamour rendering of plain runs in the final render.
// theme is a glamour style name; "" or "auto" detects the background.
func WithMarkdown(on bool, theme string) Option {
	return func(r *Renderer) {
		r.markdown = on
		r.markdownTheme = theme
	}
}

// WithNewlineToken sets the newline sentinel used when decoding raw text.
func WithNewlineToken(token string) Option {
	return func(r *Renderer) {
		r.newlineToken = token
	}
}

// WithLogger sets the logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a renderer writing to w. Defaults: FixedWidth(DefaultWidth),
// DefaultStyles, no highlighting, no markdown.
func New(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		w:            w,
		width:        FixedWidth(DefaultWidth),
		styles:       DefaultStyles(nil),
		logger:       logging.Discard(),
		newlineToken: stream.DefaultNewlineToken,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.live = painter{st: r.styles, col0: true}
	return r
}

// Phase returns the current phase.
func (r *Renderer) Phase() Phase {
	return r.phase
}

// Ledger returns the incremental output recorded so far in this turn.
func (r *Renderer) Ledger() string {
	return r.ledger.String()
}

// LineOpen reports whether the last write ended mid-line. Hosts use it to
// terminate the line before printing a prompt.
func (r *Renderer) LineOpen() bool {
	return r.lineOpen
}

// Reset abandons the current turn. The ledger is dropped without erasing.
func (r *Renderer) Reset() {
	r.phase = PhaseIdle
	r.ledger.Reset()
	r.live = painter{st: r.styles, col0: true}
}

// =============================================================================
// INCREMENTAL PASS
// =============================================================================

// RenderIncremental writes seg immediately and records the written bytes.
// The first call of a turn moves the renderer from Idle to Streaming.
func (r *Renderer) RenderIncremental(seg stream.Segment) error {
	switch r.phase {
	case PhaseIdle:
		r.phase = PhaseStreaming
		r.ledger.Reset()
		r.live = painter{st: r.styles, col0: true}
	case PhaseStreaming:
	default:
		return phaseError("RenderIncremental", r.phase)
	}

	out := r.live.segment(seg)
	if out == "" {
		return nil
	}
	if err := r.write(out); err != nil {
		return err
	}
	r.ledger.Append(out)
	return nil
}

// EraseIncrementalOutput moves the cursor back to the row where the
// incremental output started and clears everything below. The row count
// uses the width reported now. With an empty ledger nothing is written.
func (r *Renderer) EraseIncrementalOutput() error {
	switch r.phase {
	case PhaseIdle, PhaseStreaming:
	default:
		return phaseError("EraseIncrementalOutput", r.phase)
	}
	r.phase = PhaseErasing

	if r.ledger.Empty() {
		return nil
	}

	width := r.width.Width()
	rows := r.ledger.RowsUp(width)
	r.logger.Debug("erase_incremental", "bytes", r.ledger.Len(), "rows", rows, "width", width)

	var seq string
	if rows > 0 {
		seq = ansi.CursorPreviousLine(rows)
	} else {
		seq = "\r"
	}
	seq += ansi.EraseScreenBelow

	r.ledger.Reset()
	r.lineOpen = false
	_, err := io.WriteString(r.w, seq)
	return err
}

// =============================================================================
// FINAL PASS
// =============================================================================

// RenderFinal decodes fullRawText from scratch and writes the formatted
// result in one pass. It must follow EraseIncrementalOutput and returns the
// renderer to Idle.
func (r *Renderer) RenderFinal(fullRawText string) error {
	if r.phase != PhaseErasing {
		return phaseError("RenderFinal", r.phase)
	}
	r.phase = PhaseFinalRender
	defer func() {
		r.phase = PhaseIdle
		r.live = painter{st: r.styles, col0: true}
	}()

	segs := stream.Coalesce(stream.Decode(fullRawText, stream.WithNewlineToken(r.newlineToken)))
	out := r.formatFinal(segs)
	if out == "" {
		return nil
	}
	return r.write(out)
}

// Render draws a complete stored reply outside of a streamed turn.
func (r *Renderer) Render(fullRawText string) error {
	if err := r.EraseIncrementalOutput(); err != nil {
		return err
	}
	return r.RenderFinal(fullRawText)
}

func (r *Renderer) write(s string) error {
	_, err := io.WriteString(r.w, s)
	if err != nil {
		return err
	}
	r.lineOpen = !strings.HasSuffix(s, "\n")
	return nil
}

// =============================================================================
// PAINTER
// =============================================================================

// painter turns segments into terminal text. It tracks whether the cursor
// is at the start of a line so frame glyphs land in column 0.
type painter struct {
	st     Styles
	framed bool
	col0   bool
}

func (p *painter) segment(seg stream.Segment) string {
	switch seg.Boundary {
	case stream.EnterThinking:
		return p.enter(thinkingTitle)
	case stream.EnterCodeBlock:
		return p.enter(languageLabel(seg.Language))
	case stream.ExitThinking, stream.ExitCodeBlock:
		return p.exit()
	default:
		return p.text(p.st.forKind(seg.Kind).Render, seg.Text)
	}
}

func (p *painter) enter(title string) string {
	var b strings.Builder
	if !p.col0 {
		b.WriteByte('\n')
	}
	b.WriteString(p.st.header(title))
	b.WriteByte('\n')
	p.framed = true
	p.col0 = true
	return b.String()
}

func (p *painter) exit() string {
	var b strings.Builder
	if !p.col0 {
		b.WriteByte('\n')
	}
	b.WriteString(p.st.footer())
	b.WriteByte('\n')
	p.framed = false
	p.col0 = true
	return b.String()
}

// text styles s line by line, adding the gutter inside frames.
func (p *painter) text(style func(...string) string, s string) string {
	var b strings.Builder
	for _, part := range strings.SplitAfter(s, "\n") {
		if part == "" {
			continue
		}
		body := strings.TrimSuffix(part, "\n")
		if p.framed && p.col0 {
			b.WriteString(p.st.gutter())
			p.col0 = false
		}
		if body != "" {
			b.WriteString(style(body))
			p.col0 = false
		}
		if len(body) < len(part) {
			b.WriteByte('\n')
			p.col0 = true
		}
	}
	return b.String()
}

func languageLabel(lang string) string {
	if lang == "" {
		return defaultLanguage
	}
	return lang
}

func identity(s ...string) string {
	return strings.Join(s, "")
}

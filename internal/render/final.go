// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// FINAL FORMATTING
// =============================================================================

// formatFinal renders coalesced segments. Code blocks are buffered until
// they close so they can be highlighted as a whole.
func (r *Renderer) formatFinal(segs []stream.Segment) string {
	p := painter{st: r.styles, col0: true}

	var (
		b      strings.Builder
		inCode bool
		lang   string
		code   strings.Builder
	)

	for _, seg := range segs {
		switch seg.Boundary {
		case stream.EnterCodeBlock:
			b.WriteString(p.segment(seg))
			inCode = true
			lang = seg.Language
			code.Reset()

		case stream.ExitCodeBlock:
			b.WriteString(r.codeBody(&p, lang, code.String()))
			b.WriteString(p.exit())
			inCode = false

		case stream.BoundaryNone:
			switch {
			case inCode:
				code.WriteString(seg.Text)
			case seg.Kind == stream.KindPlain && r.markdown:
				b.WriteString(p.text(identity, r.renderMarkdown(seg.Text)))
			default:
				b.WriteString(p.segment(seg))
			}

		default:
			b.WriteString(p.segment(seg))
		}
	}
	return b.String()
}

// codeBody paints the contents of one code block.
func (r *Renderer) codeBody(p *painter, lang, code string) string {
	if code == "" {
		return ""
	}
	if !r.highlight {
		return p.text(r.styles.Code.Render, code)
	}
	hl, ok := highlightCode(code, lang)
	if !ok {
		return p.text(r.styles.Code.Render, code)
	}
	return p.text(identity, hl)
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode runs chroma over code. The lexer is picked by label, then by
// content analysis. ok is false if tokenising or formatting failed.
func highlightCode(code, language string) (string, bool) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", false
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return "", false
	}
	return foldTrailingEscapes(buf.String(), strings.HasSuffix(code, "\n")), true
}

// foldTrailingEscapes moves a reset sequence the formatter printed after the
// last newline back onto the last line, and makes the result end in a
// newline exactly when the source did.
func foldTrailingEscapes(s string, wantNL bool) string {
	i := strings.LastIndexByte(s, '\n')
	if i >= 0 && TextWidth(s[i+1:]) == 0 {
		s = s[:i] + s[i+1:] + "\n"
	}
	if !wantNL {
		s = strings.TrimSuffix(s, "\n")
	} else if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

// =============================================================================
// MARKDOWN
// =============================================================================

// renderMarkdown formats a plain run with glamour. On failure the text is
// returned unchanged.
func (r *Renderer) renderMarkdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(r.width.Width())}
	switch r.markdownTheme {
	case "", "auto":
		opts = append(opts, glamour.WithAutoStyle())
	default:
		opts = append(opts, glamour.WithStandardStyle(r.markdownTheme))
	}

	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		r.logger.Warn("markdown_renderer", "error", err)
		return text
	}
	out, err := tr.Render(text)
	if err != nil {
		r.logger.Warn("markdown_render", "error", err)
		return text
	}
	return out
}

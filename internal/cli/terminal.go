// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/rigchat/internal/render"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// fileDescriptor is implemented by *os.File.
type fileDescriptor interface {
	Fd() uintptr
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(fileDescriptor)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// colorProfile picks the termenv profile for w. NO_COLOR and --plain force
// Ascii; FORCE_COLOR enables colour on a non-terminal writer.
// See https://no-color.org/ for the NO_COLOR specification.
func colorProfile(w io.Writer, plain bool) termenv.Profile {
	if plain || os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return termenv.NewOutput(w, termenv.WithTTY(true)).ColorProfile()
	}
	if !isTerminal(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).ColorProfile()
}

// =============================================================================
// WIDTH
// =============================================================================

// widthSource returns the width used to render to w. An explicit width wins,
// then the configured width, then the live terminal size.
func widthSource(w io.Writer, explicit, configured int) render.WidthSource {
	switch {
	case explicit > 0:
		return render.FixedWidth(explicit)
	case configured > 0:
		return render.FixedWidth(configured)
	}
	if f, ok := w.(fileDescriptor); ok && isTerminal(w) {
		return render.TerminalWidth(f.Fd())
	}
	return render.FixedWidth(render.DefaultWidth)
}

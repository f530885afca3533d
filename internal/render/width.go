// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"golang.org/x/term"
)

// =============================================================================
// WIDTH SOURCES
// =============================================================================

// DefaultWidth is used when the width cannot be determined.
const DefaultWidth = 80

// WidthSource reports the terminal width in columns. It is queried at erase
// time, so a resize during a turn is taken into account.
type WidthSource interface {
	Width() int
}

// FixedWidth is a WidthSource that always reports the same width.
type FixedWidth int

// Width returns w, or DefaultWidth when w is not positive.
func (w FixedWidth) Width() int {
	if w <= 0 {
		return DefaultWidth
	}
	return int(w)
}

// TerminalWidth queries the terminal behind a file descriptor.
type TerminalWidth uintptr

// Width returns the current column count, or DefaultWidth if fd is not a
// terminal.
func (fd TerminalWidth) Width() int {
	w, _, err := term.GetSize(int(fd))
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// WidthFunc adapts a function to WidthSource.
type WidthFunc func() int

// Width calls f.
func (f WidthFunc) Width() int {
	if w := f(); w > 0 {
		return w
	}
	return DefaultWidth
}

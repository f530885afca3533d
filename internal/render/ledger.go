// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// tabStop is the terminal's tab interval.
const tabStop = 8

// =============================================================================
// ERASE LEDGER
// =============================================================================

// EraseLedger records every byte the incremental pass wrote in the current
// turn. It is created empty, appended on each write and consumed by the
// erase. The output is assumed to have started at column 0.
type EraseLedger struct {
	buf strings.Builder
}

// Append records s.
func (l *EraseLedger) Append(s string) {
	l.buf.WriteString(s)
}

// Len returns the number of recorded bytes.
func (l *EraseLedger) Len() int {
	return l.buf.Len()
}

// Empty reports whether nothing was recorded.
func (l *EraseLedger) Empty() bool {
	return l.buf.Len() == 0
}

// String returns the recorded bytes.
func (l *EraseLedger) String() string {
	return l.buf.String()
}

// Reset empties the ledger.
func (l *EraseLedger) Reset() {
	l.buf.Reset()
}

// RowsUp returns how many rows the cursor must move up to return to the
// row where the recorded output started, when rendered at width columns.
//
// Every complete line occupies at least one row; the last, unterminated
// line contributes its rows minus the one the cursor is on.
func (l *EraseLedger) RowsUp(width int) int {
	if l.buf.Len() == 0 {
		return 0
	}
	if width <= 0 {
		width = DefaultWidth
	}

	lines := strings.Split(ansi.Strip(l.buf.String()), "\n")
	last := len(lines) - 1

	rows := 0
	for i, line := range lines {
		n := lineRows(line, width)
		if i < last {
			rows += n
		} else if line != "" {
			rows += n - 1
		}
	}
	return rows
}

// lineRows simulates writing one logical line (no "\n", escapes already
// stripped) and returns the number of physical rows it spans. Wide runes
// that do not fit wrap early; tabs advance to the next stop but never wrap.
func lineRows(line string, width int) int {
	rows, col := 1, 0
	for _, r := range line {
		switch r {
		case '\t':
			n := tabStop - col%tabStop
			if col+n > width {
				n = width - col
			}
			if n > 0 {
				col += n
			}
			continue
		case '\r':
			col = 0
			continue
		}

		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > width {
			rows++
			col = 0
		}
		col += w
	}
	return rows
}

// TextWidth returns the display width of s, ignoring escape sequences.
func TextWidth(s string) int {
	return runewidth.StringWidth(ansi.Strip(s))
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"os"
	"strings"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEraseLedger_RowsUp(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  int
	}{
		{"empty", "", 80, 0},
		{"partial line", "abc", 80, 0},
		{"one line", "abc\n", 80, 1},
		{"line then partial", "abc\ndef", 80, 1},
		{"blank lines", "\n\n", 80, 2},
		{"exact width line", strings.Repeat("x", 80) + "\n", 80, 1},
		{"wrapped line", strings.Repeat("x", 100) + "\n", 80, 2},
		{"wrapped partial", strings.Repeat("x", 160), 80, 1},
		{"wrapped partial past edge", strings.Repeat("x", 161), 80, 2},
		{"narrow terminal", "hello world\n", 4, 3},
		{"wide runes", strings.Repeat("日", 41) + "\n", 80, 2},
		{"wide rune at edge wraps early", strings.Repeat("x", 79) + "日\n", 80, 2},
		{"escapes are zero width", "\x1b[31m" + strings.Repeat("x", 80) + "\x1b[0m\n", 80, 1},
		{"tab stops", "\tx\n", 80, 1},
		{"tabs do not wrap", strings.Repeat("\t", 20) + "x\n", 80, 2},
		{"default width", strings.Repeat("x", 100) + "\n", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l EraseLedger
			l.Append(tt.text)
			assert.Equal(t, tt.want, l.RowsUp(tt.width))
		})
	}
}

func TestEraseLedger_AppendAndReset(t *testing.T) {
	var l EraseLedger
	assert.True(t, l.Empty())

	l.Append("ab")
	l.Append("c\n")
	assert.Equal(t, "abc\n", l.String())
	assert.Equal(t, 4, l.Len())

	l.Reset()
	assert.True(t, l.Empty())
	assert.Equal(t, 0, l.RowsUp(80))
}

func TestTextWidth(t *testing.T) {
	assert.Equal(t, 3, TextWidth("abc"))
	assert.Equal(t, 4, TextWidth("日本"))
	assert.Equal(t, 2, TextWidth("\x1b[1mok\x1b[0m"))
}

// =============================================================================
// WIDTH SOURCES
// =============================================================================

func TestFixedWidth(t *testing.T) {
	assert.Equal(t, 120, FixedWidth(120).Width())
	assert.Equal(t, DefaultWidth, FixedWidth(0).Width())
}

func TestWidthFunc(t *testing.T) {
	w := 50
	ws := WidthFunc(func() int { return w })
	assert.Equal(t, 50, ws.Width())
	w = -1
	assert.Equal(t, DefaultWidth, ws.Width())
}

func TestTerminalWidth_Pty(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	require.NoError(t, pty.Setsize(ptmx, &pty.Winsize{Rows: 30, Cols: 132}))
	assert.Equal(t, 132, TerminalWidth(tty.Fd()).Width())

	require.NoError(t, pty.Setsize(ptmx, &pty.Winsize{Rows: 30, Cols: 64}))
	assert.Equal(t, 64, TerminalWidth(tty.Fd()).Width())
}

func TestTerminalWidth_NotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	assert.Equal(t, DefaultWidth, TerminalWidth(w.Fd()).Width())
}

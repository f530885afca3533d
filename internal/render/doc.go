// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render draws decoded chat segments on a terminal.
//
// A turn is rendered twice. While fragments arrive, RenderIncremental
// writes every segment immediately and records the exact bytes in an
// EraseLedger. When the stream ends, EraseIncrementalOutput moves the
// cursor back over everything the ledger says was printed (counted in
// physical rows at the width reported right now) and clears it, then
// RenderFinal decodes the complete raw text again and writes the
// authoritative version with syntax highlighting and, optionally,
// markdown formatting.
//
// # Key Types
//
//   - Renderer: owns the ledger and the turn phase
//   - EraseLedger: what the incremental pass wrote
//   - WidthSource: terminal width capability (FixedWidth, TerminalWidth)
//   - Styles: lipgloss styles per segment kind
//   - Indicator: the animated "waiting" line shown before the first fragment
//
// # Phases
//
// A Renderer moves through Idle, Streaming, Erasing and FinalRender and
// returns to Idle. Streaming may be skipped (a reply with no fragments, or
// a stored reply being re-rendered). Calls made out of order return
// ErrPhase. Reset abandons a turn.
//
// # Usage
//
//	r := render.New(os.Stdout, render.WithWidth(render.TerminalWidth(os.Stdout.Fd())))
//	for _, seg := range segs {
//	    r.RenderIncremental(seg)
//	}
//	r.EraseIncrementalOutput()
//	r.RenderFinal(raw)
package render

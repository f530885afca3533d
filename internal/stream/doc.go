// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chunked text stream of a chat turn into
// tagged render segments.
//
// The model server delivers a reply as a sequence of fragments. Inside the
// text two kinds of markers are embedded:
//
//   - <|thinking|> ... </|thinking|> delimits a "thinking" region, which
//     may open and close anywhere in a line.
//   - ``` at the start of a line (after optional spaces or tabs) opens or
//     closes a code block; the rest of the opening fence line is the
//     language label.
//
// Newlines travel over the transport as a fixed sentinel token
// (DefaultNewlineToken) and are decoded before any marker is looked at.
//
// # Key Types
//
//   - RawEvent: one transport event (text fragment, error signal, end)
//   - Segment: a decoded unit, either text of some Kind or a boundary
//   - Decoder: the incremental lexer
//
// # Usage
//
//	dec := stream.NewDecoder()
//	for ev := range events {
//	    segs, err := dec.Feed(ev)
//	    if err != nil {
//	        return err // server reported an error, turn is over
//	    }
//	    for _, seg := range segs {
//	        renderer.RenderIncremental(seg)
//	    }
//	}
//
// Fragments may split markers and the newline sentinel at any byte. The
// decoder keeps a short look-behind buffer and never emits text that could
// still turn out to be the start of a marker, so the decoded content does
// not depend on how the stream was chunked.
//
// # Leniency
//
// A thinking region or code block that is still open when the stream ends
// is closed implicitly by Finish. This is deliberate: a truncated reply is
// rendered as if the closing marker had been present, and no error is
// reported.
package stream

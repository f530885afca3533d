// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chunked text stream of a chat turn into
// tagged render segments.
package stream

import (
	"errors"
	"strings"
)

// =============================================================================
// MARKER VOCABULARY
// =============================================================================

const (
	// ThinkOpen opens a thinking region.
	ThinkOpen = "<|thinking|>"

	// ThinkClose closes a thinking region.
	ThinkClose = "</|thinking|>"

	// Fence opens or closes a code block when it starts a line.
	Fence = "```"

	// DefaultNewlineToken is the sentinel the transport uses for "\n".
	DefaultNewlineToken = "<|newline|>"

	// maxFenceLabel bounds how far the decoder looks ahead for the end of
	// a fence line. Longer "labels" are not fences.
	maxFenceLabel = 128
)

// =============================================================================
// RAW EVENTS
// =============================================================================

// EventKind identifies the variant of a RawEvent.
type EventKind int

const (
	EventText  EventKind = iota // a text fragment
	EventError                  // the server signalled an error
	EventEnd                    // end of stream
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// RawEvent is one unit of transport input.
type RawEvent struct {
	Kind EventKind
	// Text is the fragment for EventText and the message for EventError.
	Text string
}

// Text returns a text fragment event.
func Text(fragment string) RawEvent {
	return RawEvent{Kind: EventText, Text: fragment}
}

// ErrorSignal returns an error event carrying the server's message.
func ErrorSignal(message string) RawEvent {
	return RawEvent{Kind: EventError, Text: message}
}

// EndOfStream returns the end-of-stream event.
func EndOfStream() RawEvent {
	return RawEvent{Kind: EventEnd}
}

// =============================================================================
// SEGMENTS
// =============================================================================

// Kind is the render kind of a text segment.
type Kind int

const (
	KindPlain Kind = iota
	KindThinking
	KindCode
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindThinking:
		return "thinking"
	case KindCode:
		return "code"
	default:
		return "unknown"
	}
}

// Boundary marks a transition between regions.
type Boundary int

const (
	BoundaryNone Boundary = iota
	EnterThinking
	ExitThinking
	EnterCodeBlock
	ExitCodeBlock
)

// String returns the boundary name.
func (b Boundary) String() string {
	switch b {
	case BoundaryNone:
		return "none"
	case EnterThinking:
		return "enter-thinking"
	case ExitThinking:
		return "exit-thinking"
	case EnterCodeBlock:
		return "enter-code"
	case ExitCodeBlock:
		return "exit-code"
	default:
		return "unknown"
	}
}

// Segment is the decoder's output unit. A segment is either text of some
// Kind (Boundary == BoundaryNone) or a boundary event with no text.
type Segment struct {
	Kind     Kind
	Boundary Boundary
	// Language is the trimmed fence label. Set on code boundaries and code
	// text segments; may be empty.
	Language string
	Text     string
}

// IsBoundary reports whether the segment is a boundary event.
func (s Segment) IsBoundary() bool {
	return s.Boundary != BoundaryNone
}

// String renders the segment for logs and test failure messages.
func (s Segment) String() string {
	if s.IsBoundary() {
		if s.Boundary == EnterCodeBlock {
			return s.Boundary.String() + "(" + s.Language + ")"
		}
		return s.Boundary.String()
	}
	return s.Kind.String() + "(" + quote(s.Text) + ")"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, "\n", `\n`) + `"`
}

// JoinText concatenates the text of every non-boundary segment.
func JoinText(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if !s.IsBoundary() {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// Coalesce merges adjacent text segments of the same kind and language.
// Useful when comparing decodes of differently chunked input.
func Coalesce(segs []Segment) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if !s.IsBoundary() && s.Text == "" {
			continue
		}
		if n := len(out); n > 0 && !s.IsBoundary() && !out[n-1].IsBoundary() &&
			out[n-1].Kind == s.Kind && out[n-1].Language == s.Language {
			out[n-1].Text += s.Text
			continue
		}
		out = append(out, s)
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrAborted is returned by Feed after the stream was aborted by an error
// signal.
var ErrAborted = errors.New("stream aborted")

// StreamError is an explicit error signal from the server. It aborts the
// turn.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "server reported an error"
	}
	return "server error: " + e.Message
}

// IsStreamError reports whether err is (or wraps) a StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chunked text stream of a chat turn into
// tagged render segments.
package stream

import (
	"fmt"
	"strings"
)

// =============================================================================
// DECODER
// =============================================================================

type mode int

const (
	modePlain mode = iota
	modeThinking
	modeCode
)

// Decoder is an incremental lexer over the marker vocabulary. It is not
// safe for concurrent use; one decoder serves one turn.
type Decoder struct {
	nl newlineDecoder

	mode      mode
	lang      string
	lineStart bool

	// pending holds decoded text that may still be the start of a marker
	// (or an undecided fence line).
	pending string

	text strings.Builder
	out  []Segment

	aborted  bool
	finished bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithNewlineToken sets the transport's newline sentinel. An empty token
// disables sentinel decoding.
func WithNewlineToken(token string) Option {
	return func(d *Decoder) {
		d.nl.token = token
	}
}

// NewDecoder creates a decoder positioned at the start of a line in plain
// mode.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		nl:        newlineDecoder{token: DefaultNewlineToken},
		lineStart: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes one event and returns the segments that became
// unambiguous. An EventError aborts the decoder and returns a
// *StreamError; every later call returns ErrAborted.
func (d *Decoder) Feed(ev RawEvent) ([]Segment, error) {
	if d.aborted {
		return nil, ErrAborted
	}

	switch ev.Kind {
	case EventText:
		if d.finished {
			return nil, nil
		}
		d.lex(d.nl.feed(ev.Text, false), false)
		return d.take(), nil

	case EventError:
		d.aborted = true
		d.pending = ""
		d.nl.pending = ""
		d.text.Reset()
		d.out = nil
		return nil, &StreamError{Message: ev.Text}

	case EventEnd:
		return d.Finish(), nil

	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Finish flushes everything still buffered as literal text and closes an
// open thinking region or code block. Calling it again returns nothing.
func (d *Decoder) Finish() []Segment {
	if d.aborted || d.finished {
		return nil
	}
	d.finished = true

	d.lex(d.nl.feed("", true), true)

	switch d.mode {
	case modeThinking:
		d.boundary(ExitThinking)
	case modeCode:
		d.boundary(ExitCodeBlock)
	}
	d.mode = modePlain
	d.lang = ""

	return d.take()
}

// Decode runs a fresh decoder over the complete text.
func Decode(text string, opts ...Option) []Segment {
	d := NewDecoder(opts...)
	segs, _ := d.Feed(Text(text))
	return append(segs, d.Finish()...)
}

// =============================================================================
// LEXER
// =============================================================================

// lex scans pending+s. Unless final, a suffix that may still become a
// marker is kept in d.pending.
func (d *Decoder) lex(s string, final bool) {
	s = d.pending + s
	d.pending = ""

	for i := 0; i < len(s); {
		rest := s[i:]

		if d.mode == modeThinking {
			if strings.HasPrefix(rest, ThinkClose) {
				d.boundary(ExitThinking)
				d.mode = modePlain
				// text after the close tag is fence-eligible
				d.lineStart = true
				i += len(ThinkClose)
				continue
			}
			if !final && isPartial(rest, ThinkClose) {
				d.pending = rest
				break
			}
			d.text.WriteByte(s[i])
			i++
			continue
		}

		if d.lineStart {
			n, decided := d.fenceLine(rest, final)
			if !decided {
				d.pending = rest
				break
			}
			if n > 0 {
				i += n
				continue
			}
			d.lineStart = false
		}

		if strings.HasPrefix(rest, ThinkOpen) {
			// thinking takes precedence over an open code block
			if d.mode == modeCode {
				d.boundary(ExitCodeBlock)
				d.lang = ""
			}
			d.boundary(EnterThinking)
			d.mode = modeThinking
			i += len(ThinkOpen)
			continue
		}
		if !final && isPartial(rest, ThinkOpen) {
			d.pending = rest
			break
		}

		c := s[i]
		d.text.WriteByte(c)
		d.lineStart = c == '\n'
		i++
	}

	d.flush()
}

// fenceLine inspects the start of a line. It returns the number of bytes
// consumed by a fence line (0 if the line is not a fence) and whether the
// question could be decided with the bytes available.
func (d *Decoder) fenceLine(rest string, final bool) (int, bool) {
	j := 0
	for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
		j++
	}
	r := rest[j:]

	if !strings.HasPrefix(r, Fence) {
		if !final && (r == "" || isPartial(r, Fence)) {
			return 0, false
		}
		return 0, true
	}

	line := r[len(Fence):]
	consumed := j + len(Fence)
	end := strings.IndexByte(line, '\n')
	switch {
	case end > maxFenceLabel:
		return 0, true
	case end >= 0:
		consumed += end + 1
		line = line[:end]
	case len(line) > maxFenceLabel:
		return 0, true
	case !final:
		return 0, false
	default:
		consumed += len(line)
	}

	d.toggleFence(strings.TrimSpace(line))
	return consumed, true
}

func (d *Decoder) toggleFence(label string) {
	if d.mode == modeCode {
		d.boundary(ExitCodeBlock)
		d.mode = modePlain
		d.lang = ""
	} else {
		d.flush()
		d.lang = label
		d.mode = modeCode
		d.boundary(EnterCodeBlock)
	}
	d.lineStart = true
}

// =============================================================================
// OUTPUT
// =============================================================================

func (d *Decoder) kind() Kind {
	switch d.mode {
	case modeThinking:
		return KindThinking
	case modeCode:
		return KindCode
	default:
		return KindPlain
	}
}

func (d *Decoder) flush() {
	if d.text.Len() == 0 {
		return
	}
	seg := Segment{Kind: d.kind(), Text: d.text.String()}
	if d.mode == modeCode {
		seg.Language = d.lang
	}
	d.out = append(d.out, seg)
	d.text.Reset()
}

func (d *Decoder) boundary(b Boundary) {
	d.flush()
	seg := Segment{Boundary: b}
	switch b {
	case EnterThinking, ExitThinking:
		seg.Kind = KindThinking
	case EnterCodeBlock, ExitCodeBlock:
		seg.Kind = KindCode
		seg.Language = d.lang
	}
	d.out = append(d.out, seg)
}

func (d *Decoder) take() []Segment {
	out := d.out
	d.out = nil
	return out
}

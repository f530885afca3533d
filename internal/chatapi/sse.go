// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/jeranaias/rigchat/internal/stream"
)

// MaxFrameSize is the maximum allowed size of a single SSE line (1MB).
const MaxFrameSize = 1 << 20

// Event names with a meaning of their own.
const (
	EventDone  = "done"
	EventError = "error"
)

// =============================================================================
// WIRE PAYLOAD
// =============================================================================

// Payload is the JSON body of a data line.
type Payload struct {
	Chunk *string `json:"chunk,omitempty"`
	Error *string `json:"error,omitempty"`
}

// ChunkPayload builds a text frame payload.
func ChunkPayload(text string) Payload {
	return Payload{Chunk: &text}
}

// ErrorPayload builds an error frame payload.
func ErrorPayload(message string) Payload {
	return Payload{Error: &message}
}

var errFrameTooLarge = errors.New("sse line exceeds maximum frame size")

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE frame. It returns the event type (empty for
// plain messages) and the data lines joined by "\n". A frame with an event
// type but no data is returned too. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var (
		eventType string
		dataLines [][]byte
		seen      bool
	)

	for {
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && seen {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if seen {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte(":")):
			// comment
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
			seen = true
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[5:]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, data)
			seen = true
		}
		// Ignore other fields (id:, retry:)
	}
}

func (s *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				return line, nil
			}
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxFrameSize {
			return nil, errFrameTooLarge
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// =============================================================================
// FRAME DECODING
// =============================================================================

// DecodeFrame maps one SSE frame to a RawEvent. ok is false for frames that
// carry nothing (keep-alives, empty chunks). A non-nil error means the frame
// was malformed.
func DecodeFrame(eventType string, data []byte) (ev stream.RawEvent, ok bool, err error) {
	switch eventType {
	case EventDone:
		return stream.EndOfStream(), true, nil

	case EventError:
		var p Payload
		if json.Unmarshal(data, &p) == nil && p.Error != nil {
			return stream.ErrorSignal(*p.Error), true, nil
		}
		return stream.ErrorSignal(string(bytes.TrimSpace(data))), true, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return stream.RawEvent{}, false, nil
	}
	if bytes.Equal(trimmed, []byte("[DONE]")) {
		return stream.EndOfStream(), true, nil
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return stream.RawEvent{}, false, &TransportError{Event: eventType, Data: string(data), Cause: err}
	}
	switch {
	case p.Error != nil:
		return stream.ErrorSignal(*p.Error), true, nil
	case p.Chunk != nil:
		if *p.Chunk == "" {
			return stream.RawEvent{}, false, nil
		}
		return stream.Text(*p.Chunk), true, nil
	default:
		return stream.RawEvent{}, false, &TransportError{
			Event: eventType,
			Data:  string(data),
			Cause: errors.New("payload has neither chunk nor error"),
		}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/stream"
)

// TimeFormat is the timestamp layout of every record line.
const TimeFormat = "2006-01-02 15:04:05"

const (
	userTag = "User: "
	aiTag   = "AI: "
)

// Turn is one user message and the reply to it.
type Turn struct {
	Time time.Time

	// User is the message with newlines decoded.
	User string

	// AI is the response in its transport form, sentinels intact.
	AI string
}

// =============================================================================
// LOG
// =============================================================================

// Log is a history file. It is safe for concurrent use within a process.
type Log struct {
	path   string
	token  string
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithNewlineToken sets the sentinel used for newlines in stored text.
func WithNewlineToken(token string) Option {
	return func(l *Log) {
		if token != "" {
			l.token = token
		}
	}
}

// WithLogger sets the logger used for skipped lines.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns the log stored at path. The file is created on first Append.
func New(path string, opts ...Option) *Log {
	l := &Log{
		path:   path,
		token:  stream.DefaultNewlineToken,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one turn. A zero Time is replaced by the current time.
func (l *Log) Append(t Turn) error {
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	record := l.format(t)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	// One write per record so concurrent appenders never interleave lines.
	if _, err := f.WriteString(record); err != nil {
		f.Close()
		return fmt.Errorf("append history: %w", err)
	}
	return f.Close()
}

func (l *Log) format(t Turn) string {
	ts := "[" + t.Time.Format(TimeFormat) + "] "
	var b strings.Builder
	b.WriteString(ts + userTag + l.encode(t.User) + "\n")
	b.WriteString(ts + aiTag + l.encode(t.AI) + "\n")
	b.WriteString("\n")
	return b.String()
}

// encode makes s a single line. CRLF pairs count as one newline; a lone
// "\r" is kept.
func (l *Log) encode(s string) string {
	return stream.EncodeNewlines(strings.ReplaceAll(s, "\r\n", "\n"), l.token)
}

// ReadAll returns every complete turn in the file. A missing file has no
// turns.
func (l *Log) ReadAll() ([]Turn, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	p := l.newParser()
	var turns []Turn
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if t, ok := p.line(line); ok {
				turns = append(turns, t)
			}
		}
		if err == io.EOF {
			return turns, nil
		}
		if err != nil {
			return turns, fmt.Errorf("read history: %w", err)
		}
	}
}

// =============================================================================
// PARSER
// =============================================================================

// parser pairs User and AI lines. An AI line completes a turn; a User line
// left without a reply is dropped when the next User line arrives. Lines
// that are neither are skipped.
type parser struct {
	token   string
	logger  *slog.Logger
	pending *Turn
	lineNo  int
}

func (l *Log) newParser() *parser {
	return &parser{token: l.token, logger: l.logger}
}

func (p *parser) line(raw string) (Turn, bool) {
	p.lineNo++
	// One "\r" before the newline is a CRLF line end, not content.
	line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
	if strings.TrimSpace(line) == "" {
		return Turn{}, false
	}

	ts, tag, body, ok := splitRecord(line)
	if !ok {
		p.logger.Debug("history_skip", "line", p.lineNo, "reason", "unrecognised")
		return Turn{}, false
	}

	switch tag {
	case userTag:
		if p.pending != nil {
			p.logger.Debug("history_skip", "line", p.lineNo, "reason", "user without reply")
		}
		p.pending = &Turn{Time: ts, User: stream.DecodeNewlines(body, p.token)}
		return Turn{}, false
	default:
		t := Turn{Time: ts}
		if p.pending != nil {
			t = *p.pending
			p.pending = nil
		}
		t.AI = body
		return t, true
	}
}

func splitRecord(line string) (time.Time, string, string, bool) {
	if len(line) < len(TimeFormat)+3 || line[0] != '[' {
		return time.Time{}, "", "", false
	}
	end := 1 + len(TimeFormat)
	if line[end] != ']' || line[end+1] != ' ' {
		return time.Time{}, "", "", false
	}
	ts, err := time.ParseInLocation(TimeFormat, line[1:end], time.Local)
	if err != nil {
		return time.Time{}, "", "", false
	}
	rest := line[end+2:]
	for _, tag := range []string{userTag, aiTag} {
		if strings.HasPrefix(rest, tag) {
			return ts, tag, rest[len(tag):], true
		}
		// An empty message is written as "User: " and may lose its
		// trailing space to editors.
		if rest == strings.TrimSuffix(tag, " ") {
			return ts, tag, "", true
		}
	}
	return time.Time{}, "", "", false
}

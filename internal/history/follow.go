// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// FOLLOW
// =============================================================================

// Follow calls fn for every turn appended after it starts, until ctx is
// done or fn returns an error. Turns already in the file are not replayed.
// The parent directory is watched so a log that does not exist yet, or is
// replaced, is picked up.
func (l *Log) Follow(ctx context.Context, fn func(Turn) error) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	t := &tailer{path: l.path, parser: l.newParser()}
	if info, err := os.Stat(l.path); err == nil {
		t.offset = info.Size()
	}

	target := filepath.Clean(l.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			turns, err := t.poll()
			if err != nil {
				l.logger.Warn("history_follow_error", "error", err)
				continue
			}
			for _, turn := range turns {
				if err := fn(turn); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("history_watch_error", "error", err)
		}
	}
}

// tailer reads whole lines appended since the last poll.
type tailer struct {
	path    string
	offset  int64
	partial []byte
	parser  *parser
}

func (t *tailer) poll() ([]Turn, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// Truncated or replaced: start over from the top.
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	var turns []Turn
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if turn, ok := t.parser.line(string(buf[:i+1])); ok {
			turns = append(turns, turn)
		}
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
	return turns, nil
}

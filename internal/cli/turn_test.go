// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/history"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/mockserver"
	"github.com/jeranaias/rigchat/internal/render"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

func newTestDriver(url string, out io.Writer, hl *history.Log) *turnDriver {
	ascii := termenv.Ascii
	return &turnDriver{
		client: chatapi.NewClient(&chatapi.ClientConfig{
			BaseURL:        url,
			ConnectTimeout: time.Second,
			RetryDelay:     10 * time.Millisecond,
		}, nil),
		renderer: render.New(out, render.WithStyles(render.PlainStyles())),
		history:  hl,
		theme:    styles.NewTheme(out, styles.ModeDark, &ascii),
		out:      out,
		logger:   logging.Discard(),
		token:    stream.DefaultNewlineToken,
	}
}

func TestTurnDriver_ConsecutiveTurns(t *testing.T) {
	url := startServer(t, mockserver.Config{FragmentRunes: 4})
	hl := history.New(filepath.Join(t.TempDir(), "history.log"))

	var out bytes.Buffer
	d := newTestDriver(url, &out, hl)

	for _, msg := range []string{"one", "two\nlines"} {
		out.Reset()
		res, err := d.Run(context.Background(), chatapi.ChatRequest{Message: msg})
		require.NoError(t, err, msg)

		raw := stream.EncodeNewlines(mockserver.EchoReply(msg), "")
		assert.Equal(t, raw, res.Raw)
		assert.Greater(t, res.Fragments, 1)
		assert.False(t, res.Cancelled)
		assert.Equal(t, plainRender(t, raw), finalOutput(out.String()), msg)
		assert.Equal(t, render.PhaseIdle, d.renderer.Phase())
	}

	turns, err := hl.ReadAll()
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two\nlines", turns[1].User)
}

func TestTurnDriver_WithIndicator(t *testing.T) {
	url := startServer(t, mockserver.Config{Delay: 5 * time.Millisecond})

	var out bytes.Buffer
	ind := &syncBuffer{}
	d := newTestDriver(url, &out, nil)
	d.newIndicator = func() *render.Indicator {
		return render.NewIndicator(ind, render.WithSpinner("dot"))
	}

	res, err := d.Run(context.Background(), chatapi.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, plainRender(t, res.Raw), finalOutput(out.String()))
}

func TestTurnDriver_ErrorSignalErasesWithoutFinal(t *testing.T) {
	url := startServer(t, mockserver.Config{})
	hl := history.New(filepath.Join(t.TempDir(), "history.log"))

	var out bytes.Buffer
	d := newTestDriver(url, &out, hl)

	_, err := d.Run(context.Background(), chatapi.ChatRequest{Message: "!error nope"})
	require.Error(t, err)
	assert.True(t, stream.IsStreamError(err))
	assert.Empty(t, finalOutput(out.String()))
	assert.Equal(t, render.PhaseIdle, d.renderer.Phase(), "renderer is ready for the next turn")

	turns, err := hl.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, turns)

	// The next turn works normally.
	out.Reset()
	_, err = d.Run(context.Background(), chatapi.ChatRequest{Message: "again"})
	require.NoError(t, err)
}

func TestTurnDriver_InvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such route", http.StatusNotFound)
	}))
	defer srv.Close()

	var out bytes.Buffer
	d := newTestDriver(srv.URL, &out, nil)

	_, err := d.Run(context.Background(), chatapi.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.True(t, chatapi.IsInvalidResponse(err))
	assert.Empty(t, out.String(), "nothing was drawn, so nothing is erased")
}

// cancelOnWrite cancels a context on the first write.
type cancelOnWrite struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel()
	return w.buf.Write(p)
}

func TestTurnDriver_CancelKeepsPartialReply(t *testing.T) {
	const partial = "partial<|newline|>```go<|newline|>x := "
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"chunk\":%q}\n\n", partial)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hl := history.New(filepath.Join(t.TempDir(), "history.log"))
	out := &cancelOnWrite{cancel: cancel}
	d := newTestDriver(srv.URL, out, hl)

	res, err := d.Run(ctx, chatapi.ChatRequest{Message: "x"})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Cancelled)
	assert.Equal(t, partial, res.Raw)
	assert.Equal(t, plainRender(t, partial), finalOutput(out.buf.String()))

	turns, err := hl.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, turns, "cancelled turns are not recorded")
}

func TestTurnDriver_HistoryFailureIsReported(t *testing.T) {
	url := startServer(t, mockserver.Config{})

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	hl := history.New(filepath.Join(blocker, "history.log"))

	var out bytes.Buffer
	d := newTestDriver(url, &out, hl)

	res, err := d.Run(context.Background(), chatapi.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save turn to history")
	assert.NotEmpty(t, res.Raw, "the reply was still drawn")
	assert.NotEmpty(t, finalOutput(out.String()))
}

func TestPrintTurnError(t *testing.T) {
	ascii := termenv.Ascii
	var buf bytes.Buffer
	theme := styles.NewTheme(&buf, styles.ModeDark, &ascii)

	printTurnError(&buf, theme, errors.New("plain failure"))
	assert.Equal(t, "[X] plain failure\n", buf.String())

	buf.Reset()
	printTurnError(&buf, theme, chatapi.ErrNotRunning)
	assert.Contains(t, buf.String(), "[X] model server is not running\n")
	assert.Contains(t, buf.String(), "rigchat serve")
}

func TestAskMessage(t *testing.T) {
	msg, err := askMessage([]string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a b", msg)

	msg, err = askMessage(nil, bytes.NewBufferString("\n from stdin \n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", msg)

	_, err = askMessage([]string{"  "}, nil)
	assert.Error(t, err)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/history"
	"github.com/jeranaias/rigchat/internal/mockserver"
	"github.com/jeranaias/rigchat/internal/render"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

var testBuild = buildInfo{Version: "1.2.3", Commit: "abc1234", Date: "2025-01-01"}

// isolate points HOME at a temp dir, clears rigchat variables and disables
// colour. It returns the rigchat data dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("NO_COLOR", "1")
	for _, k := range []string{
		"RIGCHAT_SERVER_URL", "RIGCHAT_MODEL", "RIGCHAT_HISTORY", "RIGCHAT_NEWLINE_TOKEN",
		"RIGCHAT_THEME", "RIGCHAT_NO_HIGHLIGHT", "RIGCHAT_LOG_LEVEL", "FORCE_COLOR",
	} {
		t.Setenv(k, "")
	}
	return filepath.Join(home, ".rigchat")
}

// writeConfig writes a TOML config into the isolated data dir.
func writeConfig(t *testing.T, dataDir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(body), 0600))
}

func startServer(t *testing.T, cfg mockserver.Config) string {
	t.Helper()
	srv := httptest.NewServer(mockserver.New(cfg, nil).Router())
	t.Cleanup(srv.Close)
	return srv.URL
}

// execute runs the command tree with captured streams.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut, testBuild)
	return out.String(), errOut.String(), err
}

// finalOutput returns what was written after the last erase.
func finalOutput(out string) string {
	if i := strings.LastIndex(out, ansi.EraseScreenBelow); i >= 0 {
		return out[i+len(ansi.EraseScreenBelow):]
	}
	return out
}

// plainRender renders raw the way --plain does at the default width.
func plainRender(t *testing.T, raw string) string {
	t.Helper()
	var buf bytes.Buffer
	r := render.New(&buf, render.WithStyles(render.PlainStyles()))
	require.NoError(t, r.Render(raw))
	if r.LineOpen() {
		buf.WriteString("\n")
	}
	return buf.String()
}

func readHistory(t *testing.T, dataDir string) []history.Turn {
	t.Helper()
	turns, err := history.New(filepath.Join(dataDir, "history.log")).ReadAll()
	require.NoError(t, err)
	return turns
}

// =============================================================================
// VERSION
// =============================================================================

func TestVersion(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rigchat 1.2.3")
	assert.Contains(t, out, "commit: abc1234")
}

func TestVersion_IgnoresBrokenConfig(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "this is not toml = = =")

	_, _, err := execute(t, "", "version")
	assert.NoError(t, err)
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_FinalRenderAndHistory(t *testing.T) {
	dir := isolate(t)
	url := startServer(t, mockserver.Config{FragmentRunes: 3})

	out, _, err := execute(t, "", "--server", url, "--plain", "ask", "hello", "world")
	require.NoError(t, err)

	raw := stream.EncodeNewlines(mockserver.EchoReply("hello world"), "")
	assert.Equal(t, plainRender(t, raw), finalOutput(out))
	assert.Contains(t, out, ansi.EraseScreenBelow, "incremental output is erased before the final pass")

	turns := readHistory(t, dir)
	require.Len(t, turns, 1)
	assert.Equal(t, "hello world", turns[0].User)
	assert.Equal(t, raw, turns[0].AI)
}

func TestAsk_ReadsStdin(t *testing.T) {
	dir := isolate(t)
	url := startServer(t, mockserver.Config{})

	_, _, err := execute(t, "  piped question\n", "--server", url, "--plain", "ask")
	require.NoError(t, err)

	turns := readHistory(t, dir)
	require.Len(t, turns, 1)
	assert.Equal(t, "piped question", turns[0].User)
}

func TestAsk_EmptyMessage(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "   ", "ask")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_NoHistoryFlag(t *testing.T) {
	dir := isolate(t)
	url := startServer(t, mockserver.Config{})

	_, _, err := execute(t, "", "--server", url, "--no-history", "ask", "hi")
	require.NoError(t, err)
	assert.Empty(t, readHistory(t, dir))
}

func TestAsk_ServerErrorSignal(t *testing.T) {
	dir := isolate(t)
	url := startServer(t, mockserver.Config{FragmentRunes: 2})

	out, _, err := execute(t, "", "--server", url, "--plain", "ask", "!error disk full")
	require.Error(t, err)
	assert.True(t, stream.IsStreamError(err))
	assert.Equal(t, ExitServerError, ExitCode(err))
	assert.Equal(t, "server error: disk full", err.Error())

	assert.Empty(t, finalOutput(out), "no final render after an error signal")
	assert.Empty(t, readHistory(t, dir), "nothing recorded")
}

func TestAsk_NotRunning(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "[server]\nmax_retries = 0\nconnect_timeout = 1\n")

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := execute(t, "", "--server", url, "ask", "hi")
	require.Error(t, err)
	assert.True(t, chatapi.IsNotRunning(err), "got %v", err)
	assert.Equal(t, ExitNetworkError, ExitCode(err))
	assert.Contains(t, hint(err), "rigchat serve")
}

func TestGlobalFlags_Validated(t *testing.T) {
	isolate(t)

	for _, args := range [][]string{
		{"--server", "ftp://example.com", "ask", "hi"},
		{"--width", "5", "ask", "hi"},
	} {
		_, _, err := execute(t, "", args...)
		require.Error(t, err, args)
		assert.Equal(t, ExitConfigError, ExitCode(err), args)
	}
}

// =============================================================================
// CHAT
// =============================================================================

// recordingServer answers every chat with "ok" and records session ids.
type recordingServer struct {
	mu       sync.Mutex
	sessions []string
}

func (s *recordingServer) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.sessions = append(s.sessions, req.SessionID)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"chunk\":\"ok\"}\n\nevent: done\ndata: {}\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestChat_PipedSession(t *testing.T) {
	dir := isolate(t)
	url := startServer(t, mockserver.Config{})

	input := "first question\n\n/session\n/history 1\n/quit\nnever sent\n"
	out, errOut, err := execute(t, input, "--server", url, "--plain")
	require.NoError(t, err)
	assert.Empty(t, errOut)

	assert.Contains(t, out, "Session:")
	assert.Contains(t, out, "Turns: 1")
	assert.Contains(t, out, "#1  ")
	assert.Contains(t, out, "User: first question")

	turns := readHistory(t, dir)
	require.Len(t, turns, 1)
	assert.Equal(t, "first question", turns[0].User)
}

func TestChat_ExitWordAndEOF(t *testing.T) {
	for _, input := range []string{"exit\nnever\n", "one\n"} {
		dir := isolate(t)
		url := startServer(t, mockserver.Config{})

		_, _, err := execute(t, input, "--server", url, "chat")
		require.NoError(t, err, input)
		assert.LessOrEqual(t, len(readHistory(t, dir)), 1)
	}
}

func TestChat_ClearStartsNewSession(t *testing.T) {
	isolate(t)
	rec := &recordingServer{}
	url := rec.start(t)

	_, _, err := execute(t, "a\nb\n/clear\nc\n", "--server", url, "--no-history")
	require.NoError(t, err)

	require.Len(t, rec.sessions, 3)
	assert.NotEmpty(t, rec.sessions[0])
	assert.Equal(t, rec.sessions[0], rec.sessions[1])
	assert.NotEqual(t, rec.sessions[1], rec.sessions[2])
}

func TestChat_SlashErrorsDoNotEndChat(t *testing.T) {
	isolate(t)
	rec := &recordingServer{}
	url := rec.start(t)

	_, errOut, err := execute(t, "/nope\n/history zero\nstill here\n", "--server", url, "--no-history")
	require.NoError(t, err)
	assert.Contains(t, errOut, "unknown command: /nope")
	assert.Contains(t, errOut, "invalid count")
	assert.Len(t, rec.sessions, 1)
}

func TestChat_TurnErrorIsPrintedAndChatContinues(t *testing.T) {
	dir := isolate(t)
	url := startServer(t, mockserver.Config{})

	_, errOut, err := execute(t, "!error boom\nfine\n", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, errOut, "[X] server error: boom")

	turns := readHistory(t, dir)
	require.Len(t, turns, 1)
	assert.Equal(t, "fine", turns[0].User)
}

func TestChat_RequiresServer(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "[server]\nmax_retries = 0\nconnect_timeout = 1\n")

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := execute(t, "hi\n", "--server", url)
	require.Error(t, err)
	assert.True(t, chatapi.IsNotRunning(err))
}

func TestCompleteSlash(t *testing.T) {
	assert.Equal(t, []string{"/help", "/history"}, completeSlash("/h"))
	assert.Equal(t, []string{"/quit"}, completeSlash("/q"))
	assert.Nil(t, completeSlash("hello"))
}

// =============================================================================
// HISTORY
// =============================================================================

func seedHistory(t *testing.T, dataDir string, n int) {
	t.Helper()
	hl := history.New(filepath.Join(dataDir, "history.log"))
	for i := 1; i <= n; i++ {
		require.NoError(t, hl.Append(history.Turn{
			Time: time.Date(2025, 2, 3, 4, 5, i, 0, time.Local),
			User: fmt.Sprintf("question %d", i),
			AI:   fmt.Sprintf("<|thinking|>pondering %d</|thinking|>answer %d", i, i),
		}))
	}
}

func TestHistory_List(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No history yet.")

	seedHistory(t, dir, 3)

	out, _, err = execute(t, "", "history", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "#1")
	assert.Contains(t, lines[0], "2025-02-03 04:05:01")
	assert.Contains(t, lines[0], "question 1")
	assert.Contains(t, lines[0], "pondering 1answer 1")
	assert.NotContains(t, out, "<|thinking|>")

	out, _, err = execute(t, "", "history", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "#3")
}

func TestHistory_Show(t *testing.T) {
	dir := isolate(t)
	seedHistory(t, dir, 2)

	out, _, err := execute(t, "", "--plain", "history", "show", "2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#2  2025-02-03 04:05:02\nUser: question 2\nAI:\n"), out)
	assert.True(t, strings.HasSuffix(out, plainRender(t, "<|thinking|>pondering 2</|thinking|>answer 2")), out)

	last, _, err := execute(t, "", "--plain", "history", "show", "last")
	require.NoError(t, err)
	assert.Equal(t, out, last)
}

func TestHistory_ShowErrors(t *testing.T) {
	dir := isolate(t)

	_, _, err := execute(t, "", "history", "show", "1")
	assert.Equal(t, ExitNotFoundError, ExitCode(err))

	seedHistory(t, dir, 1)

	_, _, err = execute(t, "", "history", "show", "7")
	assert.Equal(t, ExitNotFoundError, ExitCode(err))

	_, _, err = execute(t, "", "history", "show", "x")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestHistory_BrowseNeedsTerminal(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "", "history", "browse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a terminal")
}

// =============================================================================
// RENDER
// =============================================================================

func TestRender_FileAndStdin(t *testing.T) {
	isolate(t)
	raw := "intro<|newline|>```go<|newline|>x := 1<|newline|>```<|newline|>done"

	path := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))

	fromFile, _, err := execute(t, "", "--plain", "render", path)
	require.NoError(t, err)
	assert.Equal(t, plainRender(t, raw), fromFile)
	assert.Contains(t, fromFile, "╭─ go\n│ x := 1\n╰─\n")

	fromStdin, _, err := execute(t, raw, "--plain", "render")
	require.NoError(t, err)
	assert.Equal(t, fromFile, fromStdin)
}

func TestRender_MissingFile(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "", "render", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_InitGetSet(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, "defaults in use")

	_, _, err = execute(t, "", "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "config.toml"))

	_, _, err = execute(t, "", "config", "init")
	assert.Error(t, err, "refuses to overwrite without --force")

	out, _, err = execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml")+"\n", out)

	out, _, err = execute(t, "", "config", "get", "server.url")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080\n", out)

	_, _, err = execute(t, "", "config", "set", "ui.theme", "dark")
	require.NoError(t, err)

	out, _, err = execute(t, "", "config", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	_, _, err = execute(t, "", "config", "set", "server.connect_timeout", "0")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))

	_, _, err = execute(t, "", "config", "get", "server.nope")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfig_ShowReflectsFlags(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "", "--model", "qwen", "config", "show", "--format", "json")
	require.NoError(t, err)

	var shown map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "qwen", shown["server"]["model"])

	_, _, err = execute(t, "", "config", "show", "--format", "xml")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfig_GetAll(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "", "config", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "server.url = http://127.0.0.1:8080\n")
	assert.Contains(t, out, "ui.spinner = line\n")
}

// =============================================================================
// SERVE
// =============================================================================

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_StartsAndStops(t *testing.T) {
	isolate(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, []string{"serve", "--addr", "127.0.0.1:0", "--delay", "0"}, strings.NewReader(""), out, &syncBuffer{}, testBuild)
	}()

	var base string
	require.Eventually(t, func() bool {
		s := out.String()
		i := strings.Index(s, "http://")
		if i < 0 {
			return false
		}
		base = strings.Fields(s[i:])[0]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", listenAddr("http://127.0.0.1:8080"))
	assert.Equal(t, "localhost:80", listenAddr("http://localhost"))
	assert.Equal(t, "example.com:443", listenAddr("https://example.com/api"))
	assert.Equal(t, "127.0.0.1:8080", listenAddr("::bad"))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("x"), ExitGeneralError},
		{context.Canceled, ExitCancelled},
		{&UsageError{Arg: "a"}, ExitUsageError},
		{&NotFoundError{Resource: "turn"}, ExitNotFoundError},
		{&configError{err: errors.New("bad")}, ExitConfigError},
		{fmt.Errorf("wrapped: %w", &stream.StreamError{Message: "m"}), ExitServerError},
		{chatapi.ErrTimeout, ExitTimeoutError},
		{chatapi.ErrNotRunning, ExitNetworkError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestUsageError_Message(t *testing.T) {
	err := &UsageError{Arg: "count", Value: "x", Reason: "must be a number", Example: "/history 3"}
	assert.Equal(t, "invalid count: must be a number (got: x)\nExample: /history 3", err.Error())
}

func TestTurnNumber(t *testing.T) {
	n, err := turnNumber("last", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = turnNumber("2", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = turnNumber("0", 4)
	assert.Error(t, err)
	_, err = turnNumber("5", 4)
	assert.Error(t, err)
	_, err = turnNumber("1", 0)
	assert.Error(t, err)
}

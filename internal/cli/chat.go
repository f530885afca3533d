// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/config"
)

// =============================================================================
// INPUT
// =============================================================================

// errInterrupted is returned by a lineReader when Ctrl+C aborts the prompt.
var errInterrupted = errors.New("interrupted")

// lineReader reads one line of user input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// linerReader provides line editing and persistent input history.
// Arrow keys navigate history; Tab completes slash commands.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlash)

	r := &linerReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errInterrupted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history (0600, owner read/write only) and restores the
// terminal.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads lines from piped input. No prompt is shown.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &scanReader{sc: sc}
}

func (r *scanReader) ReadLine(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var slashCommands = []struct {
	names []string
	usage string
	desc  string
}{
	{[]string{"/help", "/h"}, "/help, /h", "Show this help"},
	{[]string{"/clear", "/c"}, "/clear, /c", "Start a new session"},
	{[]string{"/session", "/s"}, "/session, /s", "Show the session id and turn count"},
	{[]string{"/history"}, "/history [n]", "Show the last n turns (default 5)"},
	{[]string{"/quit", "/q", "/exit"}, "/quit, /q", "Exit chat"},
}

// completeSlash offers slash command names for liner's Tab completion.
func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c.names[0], line) {
			out = append(out, c.names[0])
		}
	}
	return out
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession is the state of one interactive chat.
type chatSession struct {
	app         *app
	driver      *turnDriver
	input       lineReader
	out         io.Writer
	errOut      io.Writer
	interactive bool

	sessionID string
	turns     int
	started   time.Time
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
	}
}

// runChat runs the REPL until /quit, Ctrl+D or end of input.
func (a *app) runChat(cmd *cobra.Command) error {
	ctx := cmd.Context()
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()

	s := &chatSession{
		app:         a,
		driver:      a.newTurnDriver(out),
		out:         out,
		errOut:      cmd.ErrOrStderr(),
		interactive: isTerminal(in) && isTerminal(out) && liner.TerminalSupported(),
		sessionID:   uuid.NewString(),
		started:     time.Now(),
	}

	if err := s.driver.client.CheckRunning(ctx); err != nil {
		return err
	}

	if s.interactive {
		s.input = newLinerReader(filepath.Join(config.ConfigDir(), "input_history"))
		s.printWelcome()
	} else {
		s.input = newScanReader(in)
	}
	defer s.input.Close()

	a.logger.Info("chat_start", "session", s.sessionID, "interactive", s.interactive)
	defer func() {
		a.logger.Info("chat_end", "session", s.sessionID, "turns", s.turns)
	}()

	for {
		line, err := s.input.ReadLine(s.prompt())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D and end of input all exit.
			if s.interactive {
				fmt.Fprintln(s.out)
				s.printExitSummary()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, errInterrupted) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			keepGoing, err := s.handleSlash(line)
			if err != nil {
				fmt.Fprintln(s.errOut, a.theme.Error(err.Error()))
			}
			if !keepGoing {
				s.printExitSummary()
				return nil
			}
			continue
		}

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			s.printExitSummary()
			return nil
		}

		s.send(ctx, line)
	}
}

// send runs one turn. Ctrl+C during the turn cancels only the turn.
func (s *chatSession) send(parent context.Context, message string) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	res, err := s.driver.Run(ctx, chatapi.ChatRequest{Message: message, SessionID: s.sessionID})
	switch {
	case res != nil && res.Cancelled:
		fmt.Fprintln(s.errOut, s.app.theme.Warning("[Cancelled]"))
	case err != nil:
		printTurnError(s.errOut, s.app.theme, err)
	default:
		s.turns++
		if s.interactive {
			s.printBriefStats(res)
		}
	}
}

// handleSlash runs a slash command. It returns false when the chat should
// end.
func (s *chatSession) handleSlash(line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/help", "/h", "/?":
		s.printHelp()
	case "/clear", "/c":
		s.sessionID = uuid.NewString()
		s.turns = 0
		s.app.logger.Info("session_cleared", "session", s.sessionID)
		fmt.Fprintln(s.out, s.app.theme.Success("New session "+s.sessionID))
	case "/session", "/s":
		fmt.Fprintf(s.out, "%s %s\n", s.app.theme.Muted.Render("Session:"), s.sessionID)
		fmt.Fprintf(s.out, "%s %d\n", s.app.theme.Muted.Render("Turns:"), s.turns)
		fmt.Fprintf(s.out, "%s %s\n", s.app.theme.Muted.Render("Elapsed:"), time.Since(s.started).Round(time.Second))
	case "/history":
		n := 5
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return true, &UsageError{Arg: "count", Value: args[0], Reason: "must be a positive integer", Example: "/history 3"}
			}
			n = v
		}
		return true, s.app.printLastTurns(s.out, n)
	case "/quit", "/q", "/exit":
		return false, nil
	default:
		return true, fmt.Errorf("unknown command: %s (try /help)", name)
	}
	return true, nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *chatSession) prompt() string {
	return s.app.theme.Prompt.Render("you> ")
}

func (s *chatSession) printWelcome() {
	t := s.app.theme
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, t.Heading.Render("rigchat interactive chat"))
	fmt.Fprintln(s.out, t.Muted.Render(strings.Repeat("─", 30)))
	fmt.Fprintf(s.out, "%s %s\n", t.Muted.Render("Server:"), s.app.cfg.Server.URL)
	if m := s.app.cfg.Server.Model; m != "" {
		fmt.Fprintf(s.out, "%s %s\n", t.Muted.Render("Model:"), m)
	}
	if s.driver.history != nil {
		fmt.Fprintf(s.out, "%s %s\n", t.Muted.Render("History:"), s.driver.history.Path())
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, t.Muted.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printHelp() {
	t := s.app.theme
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, t.Heading.Render("Available Commands"))
	fmt.Fprintln(s.out, t.Muted.Render(strings.Repeat("─", 20)))
	for _, c := range slashCommands {
		fmt.Fprintf(s.out, "  %s  %s\n", t.Prompt.Render(fmt.Sprintf("%-15s", c.usage)), c.desc)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, t.Muted.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printBriefStats(res *turnResult) {
	stats := fmt.Sprintf("%d fragments, first after %s, %s total",
		res.Fragments,
		res.First.Round(time.Millisecond),
		res.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(s.out, s.app.theme.Muted.Render(stats))
}

func (s *chatSession) printExitSummary() {
	if !s.interactive {
		return
	}
	fmt.Fprintf(s.out, "%s %d turns in %s\n",
		s.app.theme.Muted.Render("Session ended:"),
		s.turns,
		time.Since(s.started).Round(time.Second))
}


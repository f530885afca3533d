// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/history"
	"github.com/jeranaias/rigchat/internal/render"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui/pager"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show, browse or follow stored turns",
		Long: "The history log holds one three-line record per turn:\n" +
			"a timestamp, the user message and the raw reply.\n\n" +
			"Without a subcommand the turns are listed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listHistory(cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "list only the last n turns")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored turns, one line each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listHistory(cmd.OutOrStdout(), limit)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "list only the last n turns")

	show := &cobra.Command{
		Use:   "show N|last",
		Short: "Re-render turn N",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showHistory(cmd.OutOrStdout(), args[0])
		},
	}

	browse := &cobra.Command{
		Use:   "browse",
		Short: "Scroll through every turn in a pager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.browseHistory(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	follow := &cobra.Command{
		Use:   "follow",
		Short: "Print turns as they are appended (Ctrl+C stops)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.followHistory(ctx, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(list, show, browse, follow)
	return cmd
}

// =============================================================================
// SUBCOMMANDS
// =============================================================================

// listHistory prints one line per turn: number, time and previews of the
// message and reply.
func (a *app) listHistory(w io.Writer, limit int) error {
	turns, err := a.openHistory().ReadAll()
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(w, a.theme.Muted.Render("No history yet."))
		return nil
	}

	first := 0
	if limit > 0 && limit < len(turns) {
		first = len(turns) - limit
	}

	width := a.renderWidth(w)
	for i := first; i < len(turns); i++ {
		t := turns[i]
		head := fmt.Sprintf("#%-4d %s ", i+1, t.Time.Format(history.TimeFormat))
		room := width - render.TextWidth(head) - 2
		if room < 20 {
			room = 20
		}
		user := util.Preview(t.User, room/2)
		reply := util.Preview(a.replyText(t.AI), room-render.TextWidth(user))
		fmt.Fprintf(w, "%s%s %s %s\n",
			a.theme.Timestamp.Render(head),
			user,
			a.theme.Muted.Render("→"),
			a.theme.Muted.Render(reply))
	}
	return nil
}

// showHistory re-renders one turn through the final pass.
func (a *app) showHistory(w io.Writer, arg string) error {
	turns, err := a.openHistory().ReadAll()
	if err != nil {
		return err
	}

	n, err := turnNumber(arg, len(turns))
	if err != nil {
		return err
	}
	pager.WriteTurn(w, n, turns[n-1], a.theme, a.newRenderer, a.renderWidth(w))
	return nil
}

// browseHistory opens the pager over every turn.
func (a *app) browseHistory(in io.Reader, out io.Writer) error {
	if !isTerminal(out) {
		return errors.New("history browse needs a terminal; use `rigchat history show N` instead")
	}
	turns, err := a.openHistory().ReadAll()
	if err != nil {
		return err
	}
	m := pager.New("rigchat history", turns, a.theme, a.newRenderer)
	return pager.Run(m, in, out)
}

// followHistory prints turns appended by other sessions until ctx ends.
func (a *app) followHistory(ctx context.Context, w io.Writer) error {
	hl := a.openHistory()
	existing, err := hl.ReadAll()
	if err != nil {
		return err
	}
	n := len(existing)

	fmt.Fprintln(w, a.theme.Info("Following "+hl.Path()+" (Ctrl+C to stop)"))
	err = hl.Follow(ctx, func(t history.Turn) error {
		n++
		fmt.Fprintln(w)
		pager.WriteTurn(w, n, t, a.theme, a.newRenderer, a.renderWidth(w))
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printLastTurns renders the last n turns, keeping their real numbers.
func (a *app) printLastTurns(w io.Writer, n int) error {
	turns, err := a.openHistory().ReadAll()
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(w, a.theme.Muted.Render("No history yet."))
		return nil
	}
	first := 0
	if n < len(turns) {
		first = len(turns) - n
	}
	fmt.Fprint(w, pager.Transcript(turns[first:], first+1, a.theme, a.newRenderer, a.renderWidth(w)))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// turnNumber parses a 1-based turn number or "last".
func turnNumber(arg string, count int) (int, error) {
	if count == 0 {
		return 0, &NotFoundError{Resource: "turn", ID: arg + " (history is empty)"}
	}
	if strings.EqualFold(arg, "last") {
		return count, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, &UsageError{Arg: "turn number", Value: arg, Reason: "must be a positive integer or \"last\"", Example: "rigchat history show 3"}
	}
	if n > count {
		return 0, &NotFoundError{Resource: "turn", ID: fmt.Sprintf("%d (history has %d)", n, count)}
	}
	return n, nil
}

// replyText flattens a stored reply to its readable text.
func (a *app) replyText(raw string) string {
	segs := stream.Decode(raw, stream.WithNewlineToken(a.cfg.Transport.NewlineToken))
	return stream.JoinText(segs)
}

// renderWidth is the column count used when rendering for w.
func (a *app) renderWidth(w io.Writer) int {
	return widthSource(w, 0, a.cfg.UI.Width).Width()
}

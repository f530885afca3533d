// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/history"
	"github.com/jeranaias/rigchat/internal/render"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// TURN DRIVER
// =============================================================================

// turnDriver runs chat turns: transport events feed the decoder, decoded
// segments are drawn incrementally, and the finished reply is erased and
// drawn again from the accumulated raw text.
type turnDriver struct {
	client   *chatapi.Client
	renderer *render.Renderer
	history  *history.Log // nil disables recording
	theme    *styles.Theme
	out      io.Writer
	logger   *slog.Logger
	token    string

	// newIndicator is nil when no waiting indicator should be drawn.
	newIndicator func() *render.Indicator
}

// turnResult describes one completed or abandoned turn.
type turnResult struct {
	Raw       string
	Fragments int
	First     time.Duration
	Elapsed   time.Duration
	Cancelled bool
}

func (a *app) newTurnDriver(out io.Writer) *turnDriver {
	return &turnDriver{
		client:       a.newClient(),
		renderer:     a.newRenderer(out, 0),
		history:      a.historyLog(),
		theme:        a.theme,
		out:          out,
		logger:       a.logger,
		token:        a.cfg.Transport.NewlineToken,
		newIndicator: a.newIndicator(out),
	}
}

// Run sends req and draws the reply.
//
// On a normal end of stream the incremental output is replaced by the
// final render and the turn is appended to the history log. A server error
// signal or a transport failure erases the incremental output and returns
// the error without a final render. Cancelling ctx keeps what arrived: it
// is redrawn by the final pass but not recorded.
func (d *turnDriver) Run(ctx context.Context, req chatapi.ChatRequest) (*turnResult, error) {
	var ind *render.Indicator
	if d.newIndicator != nil {
		ind = d.newIndicator()
		ind.Start()
	}
	stopIndicator := func() {
		if ind != nil {
			ind.Stop()
		}
	}
	defer stopIndicator()

	dec := stream.NewDecoder(stream.WithNewlineToken(d.token))
	acc := chatapi.NewAccumulator()

	err := d.client.Stream(ctx, req, func(ev stream.RawEvent) error {
		stopIndicator()
		acc.Add(ev)
		segs, err := dec.Feed(ev)
		if err != nil {
			return err
		}
		for _, seg := range segs {
			if err := d.renderer.RenderIncremental(seg); err != nil {
				return err
			}
		}
		return nil
	})
	stopIndicator()

	res := &turnResult{
		Raw:       acc.Raw(),
		Fragments: acc.Fragments(),
		First:     acc.FirstFragment(),
		Elapsed:   acc.Elapsed(),
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		res.Cancelled = true
		d.logger.Info("turn_cancelled", "fragments", res.Fragments)
		if ferr := d.finish(res.Raw); ferr != nil {
			return res, ferr
		}
		return res, err
	default:
		d.abandon()
		d.logger.Warn("turn_failed", "error", err, "fragments", res.Fragments)
		return res, err
	}

	if err := d.finish(res.Raw); err != nil {
		return res, err
	}
	d.logger.Info("turn_done",
		"fragments", res.Fragments,
		"bytes", len(res.Raw),
		"first_ms", res.First.Milliseconds(),
		"elapsed_ms", res.Elapsed.Milliseconds())

	if d.history != nil {
		if err := d.history.Append(history.Turn{User: req.Message, AI: res.Raw}); err != nil {
			d.logger.Warn("history_append_failed", "path", d.history.Path(), "error", err)
			return res, fmt.Errorf("failed to save turn to history: %w", err)
		}
	}
	return res, nil
}

// finish replaces the incremental output with the final render and leaves
// the cursor at the start of a line.
func (d *turnDriver) finish(raw string) error {
	if err := d.renderer.EraseIncrementalOutput(); err != nil {
		return err
	}
	if err := d.renderer.RenderFinal(raw); err != nil {
		return err
	}
	return d.endLine()
}

// abandon erases whatever the incremental pass drew and readies the
// renderer for the next turn.
func (d *turnDriver) abandon() {
	if err := d.renderer.EraseIncrementalOutput(); err != nil {
		d.logger.Debug("erase_failed", "error", err)
	}
	d.renderer.Reset()
}

func (d *turnDriver) endLine() error {
	if !d.renderer.LineOpen() {
		return nil
	}
	_, err := io.WriteString(d.out, "\n")
	return err
}

// =============================================================================
// ERROR OUTPUT
// =============================================================================

// printTurnError writes err in the error style, followed by a hint when one
// applies.
func printTurnError(w io.Writer, theme *styles.Theme, err error) {
	fmt.Fprintln(w, theme.Error(err.Error()))
	if h := hint(err); h != "" {
		fmt.Fprintln(w, theme.Info(h))
	}
}

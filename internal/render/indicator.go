// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// =============================================================================
// WAITING INDICATOR
// =============================================================================

// DefaultStopGrace bounds how long Stop waits for the animation goroutine.
const DefaultStopGrace = 150 * time.Millisecond

// Indicator animates a single "waiting" line until the first fragment
// arrives. It only ever writes to its own line and never touches a
// Renderer's ledger or phase.
type Indicator struct {
	w      io.Writer
	frames spinner.Spinner
	label  string
	style  lipgloss.Style
	grace  time.Duration

	mu      sync.Mutex
	running bool
	stopped bool
	drawn   bool
	stop    chan struct{}
	done    chan struct{}
}

// IndicatorOption configures an Indicator.
type IndicatorOption func(*Indicator)

// WithSpinner selects the frame set by name: line, dot, minidot or pulse.
// Unknown names keep the default.
func WithSpinner(name string) IndicatorOption {
	return func(i *Indicator) {
		if s, ok := SpinnerByName(name); ok {
			i.frames = s
		}
	}
}

// WithLabel sets the text shown next to the spinner.
func WithLabel(label string) IndicatorOption {
	return func(i *Indicator) {
		i.label = label
	}
}

// WithIndicatorStyle sets the style of the whole line.
func WithIndicatorStyle(st lipgloss.Style) IndicatorOption {
	return func(i *Indicator) {
		i.style = st
	}
}

// WithStopGrace overrides DefaultStopGrace.
func WithStopGrace(d time.Duration) IndicatorOption {
	return func(i *Indicator) {
		i.grace = d
	}
}

// SpinnerByName maps a config name to a bubbles frame set.
func SpinnerByName(name string) (spinner.Spinner, bool) {
	switch name {
	case "line":
		return spinner.Line, true
	case "dot":
		return spinner.Dot, true
	case "minidot":
		return spinner.MiniDot, true
	case "pulse":
		return spinner.Pulse, true
	default:
		return spinner.Spinner{}, false
	}
}

// NewIndicator creates a stopped indicator writing to w.
func NewIndicator(w io.Writer, opts ...IndicatorOption) *Indicator {
	i := &Indicator{
		w:      w,
		frames: spinner.Line,
		label:  "waiting for reply",
		style:  lipgloss.NewStyle(),
		grace:  DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start launches the animation. Calling Start on a running or stopped
// indicator does nothing.
func (i *Indicator) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running || i.stopped {
		return
	}
	i.running = true
	i.stop = make(chan struct{})
	i.done = make(chan struct{})
	go i.run(i.stop, i.done)
}

func (i *Indicator) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := i.frames.FPS
	if fps <= 0 {
		fps = time.Second / 10
	}
	ticker := time.NewTicker(fps)
	defer ticker.Stop()

	frame := 0
	for {
		if !i.draw(frame) {
			return
		}
		frame = (frame + 1) % len(i.frames.Frames)

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// draw writes one frame unless Stop has already run.
func (i *Indicator) draw(frame int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopped {
		return false
	}
	line := i.frames.Frames[frame] + " " + i.label
	_, _ = io.WriteString(i.w, "\r"+i.style.Render(line)+ansi.EraseLineRight)
	i.drawn = true
	return true
}

// Stop ends the animation and clears the line. It waits at most the grace
// period for the goroutine; no write happens after Stop returns. Safe to
// call more than once.
func (i *Indicator) Stop() {
	i.mu.Lock()
	if !i.running || i.stopped {
		i.stopped = true
		i.mu.Unlock()
		return
	}
	i.stopped = true
	close(i.stop)
	if i.drawn {
		_, _ = io.WriteString(i.w, "\r"+ansi.EraseEntireLine)
	}
	done := i.done
	i.mu.Unlock()

	select {
	case <-done:
	case <-time.After(i.grace):
	}
}

// Running reports whether the animation is active.
func (i *Indicator) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running && !i.stopped
}

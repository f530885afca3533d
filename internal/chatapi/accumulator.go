// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/stream"
)

// Accumulator collects the raw text of one reply exactly as it arrived
// (newline sentinels still encoded) together with timing statistics.
type Accumulator struct {
	raw       strings.Builder
	fragments int
	started   time.Time
	first     time.Duration
	ended     time.Duration
}

// NewAccumulator starts the clock.
func NewAccumulator() *Accumulator {
	return &Accumulator{started: time.Now()}
}

// Add records ev. Only text fragments contribute to the raw text; any
// other event stops the clock.
func (a *Accumulator) Add(ev stream.RawEvent) {
	if ev.Kind != stream.EventText {
		if a.ended == 0 {
			a.ended = time.Since(a.started)
		}
		return
	}
	if a.fragments == 0 {
		a.first = time.Since(a.started)
	}
	a.fragments++
	a.raw.WriteString(ev.Text)
}

// Raw returns the accumulated raw text.
func (a *Accumulator) Raw() string {
	return a.raw.String()
}

// Fragments returns the number of text fragments seen.
func (a *Accumulator) Fragments() int {
	return a.fragments
}

// FirstFragment returns the time from start to the first fragment, or zero
// if none arrived.
func (a *Accumulator) FirstFragment() time.Duration {
	return a.first
}

// Elapsed returns the duration of the reply, up to the terminating event
// if one was seen.
func (a *Accumulator) Elapsed() time.Duration {
	if a.ended != 0 {
		return a.ended
	}
	return time.Since(a.started)
}

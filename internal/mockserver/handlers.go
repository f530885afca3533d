// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/stream"
)

const (
	prefixError    = "!error"
	prefixGarbage  = "!garbage"
	prefixTruncate = "!truncate"
)

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatapi.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	p := s.plan(req)
	s.logger.Debug("chat_plan", "session", req.SessionID, "fragments", len(p.fragments), "error", p.errMsg != "")

	if p.garbage {
		fmt.Fprint(w, "data: {not json\n\n")
		flusher.Flush()
	}

	for _, frag := range p.fragments {
		if s.cfg.Delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.cfg.Delay):
			}
		} else if r.Context().Err() != nil {
			return
		}
		writeFrame(w, "", chatapi.ChunkPayload(frag))
		flusher.Flush()
	}

	switch {
	case p.errMsg != "":
		writeFrame(w, chatapi.EventError, chatapi.ErrorPayload(p.errMsg))
	case p.truncate:
		return
	default:
		writeFrame(w, chatapi.EventDone, struct{}{})
	}
	flusher.Flush()
}

func writeFrame(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// =============================================================================
// REPLY PLANNING
// =============================================================================

type plan struct {
	fragments []string
	errMsg    string
	garbage   bool
	truncate  bool
}

func (s *Server) plan(req chatapi.ChatRequest) plan {
	msg := req.Message
	var p plan

	switch {
	case strings.HasPrefix(msg, prefixError):
		p.errMsg = strings.TrimSpace(strings.TrimPrefix(msg, prefixError))
		if p.errMsg == "" {
			p.errMsg = "simulated failure"
		}
		frags := fragment(stream.EncodeNewlines("Working on it<|thinking|>step one", s.cfg.NewlineToken), s.cfg.FragmentRunes)
		if len(frags) > 2 {
			frags = frags[:2]
		}
		p.fragments = frags
		return p

	case strings.HasPrefix(msg, prefixGarbage):
		p.garbage = true
		msg = strings.TrimSpace(strings.TrimPrefix(msg, prefixGarbage))

	case strings.HasPrefix(msg, prefixTruncate):
		p.truncate = true
		msg = strings.TrimSpace(strings.TrimPrefix(msg, prefixTruncate))
	}

	reply := s.cfg.Reply
	if reply == "" {
		reply = EchoReply(msg)
	}
	p.fragments = fragment(stream.EncodeNewlines(reply, s.cfg.NewlineToken), s.cfg.FragmentRunes)
	return p
}

// EchoReply builds the default reply: a short thinking region followed by
// the message quoted in a code block.
func EchoReply(msg string) string {
	var b strings.Builder
	b.WriteString(stream.ThinkOpen)
	fmt.Fprintf(&b, "Echoing %d characters back.", len([]rune(msg)))
	b.WriteString(stream.ThinkClose)
	b.WriteString("You said:\n")
	b.WriteString(stream.Fence + "text\n")
	b.WriteString(msg)
	if !strings.HasSuffix(msg, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(stream.Fence + "\n")
	return b.String()
}

// fragment splits s into pieces of n runes. Markers and sentinels are cut
// wherever the boundary falls.
func fragment(s string, n int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/n+1)
	for i := 0; i < len(runes); i += n {
		end := min(i+n, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}

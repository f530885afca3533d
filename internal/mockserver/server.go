// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockserver is a small model server stand-in that speaks the chat
// streaming protocol. It backs "rigchat serve" and the transport tests.
//
// Replies are built from the request message. Control prefixes select
// failure modes:
//
//	!error <msg>    two fragments, then an error event carrying <msg>
//	!garbage <msg>  a malformed frame first, then a normal reply
//	!truncate <msg> a normal reply without the final done event
package mockserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config controls how replies are streamed.
type Config struct {
	// Reply, when set, is sent for every request instead of the echo reply.
	Reply string

	// FragmentRunes is the number of runes per fragment (default: 5).
	FragmentRunes int

	// Delay between fragments (default: 0).
	Delay time.Duration

	// NewlineToken encodes "\n" on the wire (default: stream.DefaultNewlineToken).
	NewlineToken string
}

func (c Config) withDefaults() Config {
	if c.FragmentRunes <= 0 {
		c.FragmentRunes = 5
	}
	if c.NewlineToken == "" {
		c.NewlineToken = stream.DefaultNewlineToken
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

// =============================================================================
// SERVER
// =============================================================================

// Server streams canned or echoed replies.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a server. A nil logger discards.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{cfg: cfg.withDefaults(), logger: logger}
}

// Router creates the chi router with all routes and middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, if non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("server_started", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("server_stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the chat client.
type ClientConfig struct {
	// BaseURL is the model server base URL (default: http://127.0.0.1:8080)
	BaseURL string

	// ChatPath receives the streaming POST (default: /chat)
	ChatPath string

	// HealthPath answers CheckRunning (default: /health)
	HealthPath string

	// Model is sent with every request when set
	Model string

	// ConnectTimeout bounds dialing and the health check (default: 5s)
	ConnectTimeout time.Duration

	// MaxRetries for failed connection attempts (default: 2)
	MaxRetries int

	// RetryDelay between connection attempts (default: 500ms)
	RetryDelay time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://127.0.0.1:8080",
		ChatPath:       "/chat",
		HealthPath:     "/health",
		ConnectTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryDelay:     500 * time.Millisecond,
	}
}

// ChatRequest is the body of a chat POST.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the model server. It is safe for concurrent use; each
// Stream call is independent.
//
// Example:
//
//	client := chatapi.NewClient(chatapi.DefaultConfig(), logger)
//	err := client.Stream(ctx, chatapi.ChatRequest{Message: "hi"}, func(ev stream.RawEvent) error {
//	    segs, err := dec.Feed(ev)
//	    ...
//	})
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	onSkip     func(*TransportError)
}

// NewClient creates a client. Zero fields of cfg take their defaults; a nil
// logger discards.
func NewClient(cfg *ClientConfig, logger *slog.Logger) *Client {
	config := DefaultConfig()
	if cfg != nil {
		merged := *cfg
		if merged.BaseURL == "" {
			merged.BaseURL = config.BaseURL
		}
		if merged.ChatPath == "" {
			merged.ChatPath = config.ChatPath
		}
		if merged.HealthPath == "" {
			merged.HealthPath = config.HealthPath
		}
		if merged.ConnectTimeout <= 0 {
			merged.ConnectTimeout = config.ConnectTimeout
		}
		if merged.MaxRetries < 0 {
			merged.MaxRetries = 0
		}
		if merged.RetryDelay <= 0 {
			merged.RetryDelay = config.RetryDelay
		}
		config = &merged
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if logger == nil {
		logger = logging.Discard()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: config.ConnectTimeout}).DialContext

	return &Client{
		config: config,
		// No overall timeout: a reply streams for as long as the model runs.
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() ClientConfig {
	return *c.config
}

// SetSkipHook registers fn to be called for every malformed frame.
func (c *Client) SetSkipHook(fn func(*TransportError)) {
	c.onSkip = fn
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the server answers on the health path.
func (c *Client) CheckRunning(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+c.config.HealthPath, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.connectError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from model server: " + resp.Status,
		}
	}
	return nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Stream sends req and calls fn for every event of the reply, in order.
// The last event passed to fn is EndOfStream or an ErrorSignal, unless fn
// returns an error or ctx is cancelled first. An error returned by fn stops
// the stream and is returned unchanged.
func (c *Client) Stream(ctx context.Context, req ChatRequest, fn func(stream.RawEvent) error) error {
	if req.Model == "" {
		req.Model = c.config.Model
	}

	resp, err := c.connect(ctx, req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	reader := NewSSEReader(resp.Body)
	frames := 0
	for {
		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("stream_eof", "frames", frames)
				return fn(stream.EndOfStream())
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
		}
		frames++

		ev, ok, terr := DecodeFrame(eventType, data)
		if terr != nil {
			var te *TransportError
			if errors.As(terr, &te) {
				c.logger.Warn("transport_skip", "event", eventName(te.Event), "error", te.Cause)
				if c.onSkip != nil {
					c.onSkip(te)
				}
			}
			continue
		}
		if !ok {
			continue
		}

		if err := fn(ev); err != nil {
			return err
		}
		if ev.Kind != stream.EventText {
			c.logger.Debug("stream_end", "kind", ev.Kind.String(), "frames", frames)
			return nil
		}
	}
}

// connect posts the request, retrying failed attempts. Attempts are paced
// by a limiter that allows one attempt per RetryDelay.
func (c *Client) connect(ctx context.Context, req ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	limiter := rate.NewLimiter(rate.Every(c.config.RetryDelay), 1)
	url := c.config.BaseURL + c.config.ChatPath

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = c.connectError(err)
			c.logger.Warn("connect_failed", "attempt", attempt+1, "url", url, "error", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			c.logger.Debug("connected", "attempt", attempt+1, "url", url)
			return resp, nil

		case resp.StatusCode >= 500:
			msg := readErrorBody(resp)
			lastErr = &ClientError{Type: ErrTypeConnection, Message: "model server error: " + resp.Status + msg}
			c.logger.Warn("connect_failed", "attempt", attempt+1, "status", resp.StatusCode)
			continue

		default:
			msg := readErrorBody(resp)
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "unexpected status from model server: " + resp.Status + msg}
		}
	}
	return nil, lastErr
}

func (c *Client) connectError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{
		Type:    ErrTypeNotRunning,
		Message: "model server is not running at " + c.config.BaseURL,
		Cause:   err,
	}
}

func readErrorBody(resp *http.Response) string {
	defer drainAndClose(resp.Body)
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if s := strings.TrimSpace(string(b)); s != "" {
		return " (" + s + ")"
	}
	return ""
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	r.Close()
}

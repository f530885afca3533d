// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"errors"
	"fmt"
)

// =============================================================================
// CLIENT ERRORS
// =============================================================================

// ClientError represents an error from the chat client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning = &ClientError{Type: ErrTypeNotRunning, Message: "model server is not running"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// IsNotRunning checks if an error indicates the server could not be reached.
func IsNotRunning(err error) bool {
	return hasType(err, ErrTypeNotRunning) || errors.Is(err, ErrNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout) || errors.Is(err, ErrTimeout)
}

// IsInvalidResponse checks if the server answered with something unusable.
func IsInvalidResponse(err error) bool {
	return hasType(err, ErrTypeInvalidResponse)
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// =============================================================================
// TRANSPORT ERRORS
// =============================================================================

// TransportError describes one SSE frame that could not be decoded. It is
// never returned from Stream; the frame is skipped.
type TransportError struct {
	Event string
	Data  string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("malformed %q event %q: %v", eventName(e.Event), truncate(e.Data, 80), e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func eventName(ev string) string {
	if ev == "" {
		return "message"
	}
	return ev
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

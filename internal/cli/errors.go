// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the model server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitServerError indicates the server aborted a reply
	ExitServerError = 9
	// ExitCancelled indicates the user interrupted a turn
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports a bad argument.
type UsageError struct {
	Arg     string
	Value   string
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Arg, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// configError marks a failure to load or apply configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	var usage *UsageError
	var notFound *NotFoundError
	var cfgErr *configError
	var verrs config.ValidateErrors

	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &notFound):
		return ExitNotFoundError
	case errors.As(err, &cfgErr), errors.As(err, &verrs):
		return ExitConfigError
	case stream.IsStreamError(err):
		return ExitServerError
	case chatapi.IsTimeout(err):
		return ExitTimeoutError
	case chatapi.IsNotRunning(err):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// hint returns a one-line suggestion for errors the user can act on.
func hint(err error) string {
	switch {
	case chatapi.IsNotRunning(err):
		return "Start the model server, or run `rigchat serve` for a local test server."
	case chatapi.IsTimeout(err):
		return "The server did not answer in time; check server.url and server.connect_timeout."
	case chatapi.IsInvalidResponse(err):
		return "Check server.chat_path; the server answered but not with an event stream."
	}
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return "Run `rigchat config path` to see which file was loaded."
	}
	return ""
}

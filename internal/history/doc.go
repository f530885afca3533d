// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history stores chat turns in an append-only flat file.
//
// Each turn is three lines:
//
//	[2006-01-02 15:04:05] User: <message>
//	[2006-01-02 15:04:05] AI: <raw response>
//	<blank>
//
// Newlines inside the message and response are written as the newline
// sentinel, so a stored AI line is the same text the transport delivered
// and can be passed straight to the final render pass.
package history

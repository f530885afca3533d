// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatapi is the HTTP transport between rigchat and the model
// server.
//
// A turn is a single POST to the chat endpoint; the reply arrives as a
// Server-Sent Events stream:
//
//	data: {"chunk": "Hello<|newline|>"}
//
//	data: {"error": "model crashed"}
//
//	event: done
//	data: {}
//
// Every frame is mapped to a stream.RawEvent and handed to the caller's
// callback in arrival order. Frames whose payload cannot be decoded are
// reported as TransportError to the skip hook and otherwise ignored.
// A stream that ends without "event: done" is treated as finished.
//
// # Key Types
//
//   - Client: health check and streaming chat
//   - SSEReader: frame parser
//   - Accumulator: collects the raw reply text of one turn
//   - ClientError: categorized connection and protocol errors
package chatapi

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command tree.
//
// # Commands
//
//	rigchat                 interactive chat (same as "rigchat chat")
//	rigchat ask "message"   one turn, then exit
//	rigchat history list    list stored turns
//	rigchat history show N  re-render turn N
//	rigchat history browse  scroll all turns in a pager
//	rigchat history follow  print turns as other sessions append them
//	rigchat render [FILE]   format raw reply text from FILE or stdin
//	rigchat serve           development SSE server
//	rigchat config ...      show, path, init, get, set
//	rigchat version
//
// Global flags (--config, --server, --model, --no-history, --plain,
// --width) override the loaded configuration for one invocation.
//
// Every command writes through cobra's OutOrStdout/ErrOrStderr so tests can
// capture output without a terminal.
package cli

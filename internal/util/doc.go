// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small file and string helpers shared by the config,
// history and cli packages.
//
//	// Write a config file without ever leaving a partial copy behind
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Expand "~/" against the user's home directory
//	p := util.ExpandHome("~/.rigchat/history.log")
//
//	// One-line preview of multi-line text for listings
//	line := util.Preview(text, 60)
package util

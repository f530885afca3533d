// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" or "~/" with the user's home
// directory. Other paths are returned unchanged, as is p when the home
// directory cannot be determined.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

// DataDir returns ~/.rigchat, or ".rigchat" when there is no home
// directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rigchat"
	}
	return filepath.Join(home, ".rigchat")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates rigchat configuration.
//
// TOML, YAML and JSON files are supported; the format follows the file
// extension. Values not present in the file keep their defaults.
//
// # Configuration Precedence
//
//   - Command-line flags (applied by the cli package)
//   - Environment variables (RIGCHAT_*)
//   - --config PATH, or the first of ~/.rigchat/config.toml, config.yaml,
//     config.yml, config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	client := chatapi.NewClient(&chatapi.ClientConfig{
//	    BaseURL: cfg.Server.URL,
//	    ...
//	}, logger)
//
// There is no package-level configuration; callers pass *Config on.
package config

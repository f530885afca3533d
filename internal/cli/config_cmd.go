// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
)

var configFormats = []string{"toml", "yaml", "json"}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit configuration",
	}

	var showFormat string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, environment and flags merged)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(showFormat); err != nil {
				return err
			}
			data, err := a.cfg.Marshal(showFormat)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVarP(&showFormat, "format", "f", "toml", "output format: toml, yaml or json")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if src := a.cfg.Source(); src != "" {
				fmt.Fprintln(out, src)
				return nil
			}
			fmt.Fprintln(out, a.theme.Muted.Render("(no config file; defaults in use)"))
			fmt.Fprintln(out, config.DefaultPath())
			return nil
		},
	}

	var initFormat string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(initFormat); err != nil {
				return err
			}
			target := a.flags.configPath
			if target == "" {
				target = filepath.Join(config.ConfigDir(), "config."+initFormat)
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
			if err := config.Save(config.Default(), target); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.theme.Success("Wrote "+target))
			return nil
		},
	}
	initCmd.Flags().StringVarP(&initFormat, "format", "f", "toml", "file format: toml, yaml or json")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	get := &cobra.Command{
		Use:   "get [KEY]",
		Short: "Print one value, or every key with its value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return printAllKeys(out, a.cfg)
			}
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return &UsageError{Arg: "key", Value: args[0], Reason: err.Error(), Example: "rigchat config get server.url"}
			}
			fmt.Fprintln(out, v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one value in the configuration file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setConfigValue(cmd.OutOrStdout(), args[0], args[1])
		},
	}

	cmd.AddCommand(show, path, initCmd, get, set)
	return cmd
}

// setConfigValue edits the file on disk. Environment variables and flags
// are not written back.
func (a *app) setConfigValue(w io.Writer, key, value string) error {
	target := a.flags.configPath
	if target == "" {
		target = config.FindConfig()
	}
	if target == "" {
		target = config.DefaultPath()
	}

	base := config.Default()
	if _, err := os.Stat(target); err == nil {
		if err := config.LoadFile(base, target); err != nil {
			return &configError{err: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	old, err := base.Get(key)
	if err != nil {
		return &UsageError{Arg: "key", Value: key, Reason: err.Error(), Example: "rigchat config set ui.theme dark"}
	}

	updated := base.Clone()
	if err := updated.Set(key, value); err != nil {
		return &UsageError{Arg: "value", Value: value, Reason: err.Error()}
	}
	if err := updated.Validate(); err != nil {
		return &configError{err: err}
	}
	if err := config.Save(updated, target); err != nil {
		return err
	}

	now, _ := updated.Get(key)
	a.logger.Info("config_set", "key", key, "path", target)
	fmt.Fprintf(w, "%s %s: %v → %v\n", a.theme.Success("Updated "+target), key, old, now)
	return nil
}

func printAllKeys(w io.Writer, cfg *config.Config) error {
	for _, k := range config.AllKeys() {
		v, err := cfg.Get(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s = %v\n", k, v)
	}
	return nil
}

func checkFormat(f string) error {
	for _, ok := range configFormats {
		if f == ok {
			return nil
		}
	}
	return &UsageError{Arg: "format", Value: f, Reason: "must be one of " + strings.Join(configFormats, ", ")}
}

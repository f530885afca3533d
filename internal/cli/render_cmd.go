// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRenderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "render [FILE]",
		Short: "Format raw reply text from FILE or standard input",
		Long: "Run the final render over raw reply text, exactly as it would appear\n" +
			"after a streamed turn. Newline sentinels and literal newlines are both\n" +
			"accepted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if len(args) == 1 && args[0] != "-" {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			out := cmd.OutOrStdout()
			r := a.newRenderer(out, 0)
			if err := r.Render(string(raw)); err != nil {
				return err
			}
			if r.LineOpen() {
				_, err = io.WriteString(out, "\n")
			}
			return err
		},
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/chatapi"
)

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Long: "Send one message and print the reply, then exit.\n\n" +
			"With no arguments the message is read from standard input.",
		Example: `  rigchat ask "What is a goroutine?"
  git diff | rigchat ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := askMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			d := a.newTurnDriver(cmd.OutOrStdout())
			_, err = d.Run(ctx, chatapi.ChatRequest{Message: msg, SessionID: uuid.NewString()})
			return err
		},
	}
}

// askMessage joins args, or reads in when there are none.
func askMessage(args []string, in io.Reader) (string, error) {
	msg := strings.Join(args, " ")
	if len(args) == 0 {
		if isTerminal(in) {
			return "", &UsageError{Arg: "message", Reason: "no message given", Example: `rigchat ask "hello"`}
		}
		b, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		msg = string(b)
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", &UsageError{Arg: "message", Reason: "message is empty", Example: `rigchat ask "hello"`}
	}
	return msg, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/mockserver"
)

// serveOptions are the flags of the serve command.
type serveOptions struct {
	addr      string
	reply     string
	replyFile string
	fragment  int
	delay     time.Duration
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a development server that streams echoed or canned replies",
		Long: "serve answers GET /health and POST /chat like a model server. Each\n" +
			"reply is an echo of the message with a thinking region and a code\n" +
			"block, split into small fragments.\n\n" +
			"Messages starting with !error, !garbage or !truncate exercise the\n" +
			"error signal, malformed frames and a stream that ends without done.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "listen address (default: host of server.url)")
	f.StringVar(&opts.reply, "reply", "", "send this reply for every message instead of the echo")
	f.StringVar(&opts.replyFile, "reply-file", "", "read the canned reply from a file")
	f.IntVar(&opts.fragment, "fragment-runes", 5, "runes per streamed fragment")
	f.DurationVar(&opts.delay, "delay", 20*time.Millisecond, "pause between fragments")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, opts serveOptions) error {
	reply := opts.reply
	if opts.replyFile != "" {
		b, err := os.ReadFile(opts.replyFile)
		if err != nil {
			return fmt.Errorf("failed to read reply file: %w", err)
		}
		reply = string(b)
	}

	addr := opts.addr
	if addr == "" {
		addr = listenAddr(a.cfg.Server.URL)
	}

	srv := mockserver.New(mockserver.Config{
		Reply:         reply,
		FragmentRunes: opts.fragment,
		Delay:         opts.delay,
		NewlineToken:  a.cfg.Transport.NewlineToken,
	}, a.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return srv.ListenAndServe(ctx, addr, func(bound net.Addr) {
		a.logger.Info("serve_start", "addr", bound.String())
		fmt.Fprintln(out, a.theme.Success("Serving on http://"+bound.String()+" (Ctrl+C to stop)"))
	})
}

// listenAddr derives a listen address from the configured server URL.
func listenAddr(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "127.0.0.1:8080"
	}
	if u.Port() == "" {
		if u.Scheme == "https" {
			return net.JoinHostPort(u.Hostname(), "443")
		}
		return net.JoinHostPort(u.Hostname(), "80")
	}
	return u.Host
}

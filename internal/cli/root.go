// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/history"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// buildInfo is stamped by the linker through main.
type buildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	server     string
	model      string
	noHistory  bool
	plain      bool
	width      int
}

// app carries everything a command needs once setup has run. One app exists
// per invocation.
type app struct {
	build buildInfo
	flags globalFlags

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	theme    *styles.Theme
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr, buildInfo{version, commit, date})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if h := hint(err); h != "" {
			fmt.Fprintln(os.Stderr, h)
		}
		os.Exit(ExitCode(err))
	}
}

// run builds a fresh command tree and executes args against it.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer, build buildInfo) error {
	a := &app{build: build}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rigchat",
		Short: "Terminal chat client for a local model server",
		Long: "rigchat streams replies from a local model server, drawing them live and\n" +
			"redrawing each finished reply with thinking frames and highlighted code.",
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		// Running rigchat with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "config file path (default ~/.rigchat/config.toml)")
	pf.StringVar(&a.flags.server, "server", "", "model server base URL")
	pf.StringVarP(&a.flags.model, "model", "m", "", "model name sent with each request")
	pf.BoolVar(&a.flags.noHistory, "no-history", false, "do not append turns to the history log")
	pf.BoolVar(&a.flags.plain, "plain", false, "no colour, highlighting or markdown")
	pf.IntVar(&a.flags.width, "width", 0, "render width in columns (0 = detect)")

	root.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newHistoryCmd(a),
		newRenderCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads configuration, applies flag overrides and opens the log.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return &configError{err: err}
	}
	if err := a.applyFlags(cfg); err != nil {
		return &configError{err: err}
	}

	logger, closeLog, err := logging.New(cfg.LogPath(), cfg.Log.Level)
	if err != nil {
		return &configError{err: fmt.Errorf("failed to open log: %w", err)}
	}
	a.cfg, a.logger, a.closeLog = cfg, logger, closeLog

	for _, w := range cfg.Warnings() {
		logger.Warn("config_warning", "detail", w)
	}

	mode, err := styles.ParseMode(cfg.UI.Theme)
	if err != nil {
		return &configError{err: err}
	}
	out := cmd.OutOrStdout()
	profile := colorProfile(out, a.flags.plain)
	a.theme = styles.NewTheme(out, mode, &profile)

	logger.Debug("startup",
		"version", a.build.Version,
		"command", cmd.CommandPath(),
		"config", cfg.Source(),
		"server", cfg.Server.URL)
	return nil
}

// applyFlags copies explicitly set flags into cfg and revalidates.
func (a *app) applyFlags(cfg *config.Config) error {
	if a.flags.server != "" {
		cfg.Server.URL = a.flags.server
	}
	if a.flags.model != "" {
		cfg.Server.Model = a.flags.model
	}
	if a.flags.noHistory {
		cfg.History.Enabled = false
	}
	if a.flags.plain {
		cfg.UI.Highlight = false
		cfg.UI.Markdown = false
	}
	if a.flags.width != 0 {
		cfg.UI.Width = a.flags.width
	}
	return cfg.Validate()
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

// =============================================================================
// COMPONENT FACTORIES
// =============================================================================

// newClient builds the model server client from the configuration.
func (a *app) newClient() *chatapi.Client {
	return chatapi.NewClient(&chatapi.ClientConfig{
		BaseURL:        a.cfg.Server.URL,
		ChatPath:       a.cfg.Server.ChatPath,
		HealthPath:     a.cfg.Server.HealthPath,
		Model:          a.cfg.Server.Model,
		ConnectTimeout: a.cfg.ConnectTimeout(),
		MaxRetries:     a.cfg.Server.MaxRetries,
		RetryDelay:     a.cfg.RetryDelay(),
	}, a.logger)
}

// historyLog returns the history log, or nil when history is disabled.
func (a *app) historyLog() *history.Log {
	if !a.cfg.History.Enabled {
		return nil
	}
	return a.openHistory()
}

// openHistory returns the history log regardless of History.Enabled, for
// the read-only history commands.
func (a *app) openHistory() *history.Log {
	return history.New(a.cfg.HistoryPath(),
		history.WithNewlineToken(a.cfg.Transport.NewlineToken),
		history.WithLogger(a.logger))
}

// newRenderer builds a renderer writing to w. width > 0 fixes the width;
// otherwise the configured width or the terminal behind w decides.
func (a *app) newRenderer(w io.Writer, width int) *render.Renderer {
	st := render.PlainStyles()
	if !a.flags.plain {
		st = render.DefaultStyles(a.theme.Renderer)
	}
	return render.New(w,
		render.WithWidth(widthSource(w, width, a.cfg.UI.Width)),
		render.WithStyles(st),
		render.WithHighlighting(a.cfg.UI.Highlight),
		render.WithMarkdown(a.cfg.UI.Markdown, a.cfg.UI.Theme),
		render.WithNewlineToken(a.cfg.Transport.NewlineToken),
		render.WithLogger(a.logger),
	)
}

// newIndicator returns a factory for the waiting indicator, or nil when w
// is not a terminal.
func (a *app) newIndicator(w io.Writer) func() *render.Indicator {
	if !isTerminal(w) {
		return nil
	}
	return func() *render.Indicator {
		return render.NewIndicator(w,
			render.WithSpinner(a.cfg.UI.Spinner),
			render.WithIndicatorStyle(a.theme.Indicator))
	}
}

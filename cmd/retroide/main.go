// Package main is the entry point for RetroIDE.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/config"
	"github.com/dshills/retroide/internal/tui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	worker     string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "retroide",
		Short: "Retro game IDE backed by a supervised build worker",
		Long: `RetroIDE drives a retro-console build worker over a framed stdio
protocol. Without a subcommand it opens the terminal UI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), g)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to configuration file (default "+config.DefaultPath()+")")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&g.worker, "worker", "", "Worker command override")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable coloured output")

	cmd.AddCommand(
		newToolsCmd(g),
		newCallCmd(g),
		newHealthCmd(g),
		newHistoryCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	return cmd
}

func (g *globalFlags) path() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.DefaultPath()
}

// loadConfig loads the configuration and applies flag overrides.
func (g *globalFlags) loadConfig(defaultLevel string) (*config.Config, error) {
	cfg, err := config.Load(g.path())
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	} else if defaultLevel != "" {
		cfg.Logging.Level = defaultLevel
	}
	if g.worker != "" {
		cfg.Worker.Command = g.worker
	}
	return cfg, cfg.Validate()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// withApp creates the application, optionally starts the worker, runs fn
// and always shuts down.
func withApp(ctx context.Context, opts app.Options, start bool, fn func(context.Context, *app.Application) error) (err error) {
	application, err := app.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := application.Shutdown(sctx); serr != nil && err == nil {
			err = serr
		}
	}()

	if start {
		if err := application.Start(ctx); err != nil {
			return fmt.Errorf("starting worker: %w", err)
		}
	}
	return fn(ctx, application)
}

func runTUI(parent context.Context, g *globalFlags) error {
	cfg, err := g.loadConfig("")
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs go to a file.
	if cfg.Logging.File == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return err
		}
		cfg.Logging.File = filepath.Join(dir, "retroide", "retroide.log")
	}

	ctx, stop := signalContext(parent)
	defer stop()

	opts := app.Options{ConfigPath: g.path(), Config: cfg, WatchConfig: true}
	return withApp(ctx, opts, false, func(ctx context.Context, a *app.Application) error {
		// A worker that fails to start is shown as such; R retries.
		if err := a.Start(ctx); err != nil {
			a.Logger().Error("worker start failed", "error", err)
		}
		ui := tui.New(a, app.DefaultProject(), tui.WithLogger(a.Logger()))
		return ui.Run(ctx)
	})
}

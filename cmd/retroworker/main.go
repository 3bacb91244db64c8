// Package main is the RetroIDE build worker. It speaks the framed worker
// protocol on stdin and stdout and logs to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/transport"
	"github.com/dshills/retroide/internal/workerhost"
)

// Version information (set via ldflags during build).
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		stepDelay time.Duration
		maxFrame  int
	)

	cmd := &cobra.Command{
		Use:           "retroworker",
		Short:         "RetroIDE build worker (stdio)",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := logging.DefaultConfig()
			cfg.Level = logging.ParseLevel(logLevel)
			cfg.Name = "retroworker"
			log := logging.New(cfg)
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler := toolchain.NewHandler(
				toolchain.WithStepDelay(stepDelay),
				toolchain.WithHandlerLogger(log),
			)
			return workerhost.Serve(ctx, os.Stdin, os.Stdout, handler,
				workerhost.WithLogger(log),
				workerhost.WithMaxFrameSize(maxFrame),
				workerhost.WithServerInfo("retroide", version),
			)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&stepDelay, "step-delay", 0, "Duration of each build progress step")
	cmd.Flags().IntVar(&maxFrame, "max-frame-size", transport.DefaultMaxFrameSize, "Largest accepted frame in bytes")
	return cmd
}

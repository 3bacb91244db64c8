package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/journal"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/web"
)

var (
	bold   = color.New(color.Bold)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// outcomeColor picks the colour for an outcome.
func outcomeColor(outcome string) *color.Color {
	switch protocol.Outcome(outcome) {
	case protocol.OutcomeOK:
		return green
	case protocol.OutcomeTimeout, protocol.OutcomeWorkerLost, protocol.OutcomeCancelled:
		return yellow
	default:
		return red
	}
}

func newToolsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the worker's tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("warn")
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withApp(ctx, app.Options{Config: cfg}, true, func(ctx context.Context, a *app.Application) error {
				tools, err := a.Tools().ListTools(ctx)
				if err != nil {
					return errors.New(app.Describe(err))
				}
				printTools(cmd.OutOrStdout(), tools)
				return nil
			})
		},
	}
}

func printTools(w io.Writer, tools []toolchain.Tool) {
	for _, tool := range tools {
		cyan.Fprintf(w, "%s\n", tool.Name)
		fmt.Fprintf(w, "  %s\n", tool.Description)
		for _, name := range tool.InputSchema.Required {
			prop := tool.InputSchema.Properties[name]
			fmt.Fprintf(w, "    %s (%s, required)", name, prop.Type)
			if len(prop.Enum) > 0 {
				fmt.Fprintf(w, " one of %s", strings.Join(prop.Enum, ", "))
			}
			fmt.Fprintln(w)
		}
	}
}

func newCallCmd(g *globalFlags) *cobra.Command {
	var (
		base    string
		sets    []string
		timeout time.Duration
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "call TOOL",
		Short: "Call a worker tool",
		Example: `  retroide call create_retro_project --set platform=nes --set projectName=CircuitQuest
  retroide call compile_rom --set platform=nes --set 'sourceFiles=["main.asm"]'
  retroide call set_code_opacity --json '{"filename":"main.asm"}' --set opacity=40`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := buildArguments(base, sets)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig("warn")
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			params := toolchain.CallToolParams{Name: args[0], Arguments: arguments}
			return withApp(ctx, app.Options{Config: cfg}, true, func(ctx context.Context, a *app.Application) error {
				result, err := a.Call(ctx, protocol.MethodToolsCall, params, timeout)
				if err != nil {
					return errors.New(app.Describe(err))
				}

				out := cmd.OutOrStdout()
				if raw {
					formatted := pretty.Pretty(result)
					if !color.NoColor {
						formatted = pretty.Color(formatted, pretty.TerminalStyle)
					}
					_, err := out.Write(formatted)
					return err
				}

				text, failed := resultText(result)
				if failed {
					return errors.New(text)
				}
				green.Fprintln(out, text)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&base, "json", "", "Arguments as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set an argument: path=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Call timeout (default from configuration)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw JSON result")
	return cmd
}

func newHealthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Start the worker, ping it and report its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("warn")
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withApp(ctx, app.Options{Config: cfg}, true, func(ctx context.Context, a *app.Application) error {
				started := time.Now()
				_, pingErr := a.Call(ctx, protocol.MethodPing, nil, 0)
				rtt := time.Since(started)

				out := cmd.OutOrStdout()
				h := a.Health()
				state := green
				if !h.Available() {
					state = red
				}
				bold.Fprint(out, "state      ")
				state.Fprintln(out, h.State)
				bold.Fprint(out, "pid        ")
				fmt.Fprintln(out, h.PID)
				bold.Fprint(out, "instance   ")
				fmt.Fprintln(out, h.InstanceID)
				bold.Fprint(out, "restarts   ")
				fmt.Fprintln(out, h.RestartCount)
				bold.Fprint(out, "ping       ")
				if pingErr != nil {
					red.Fprintln(out, app.Describe(pingErr))
					return pingErr
				}
				green.Fprintf(out, "ok (%v)\n", rtt.Round(time.Microsecond))
				return nil
			})
		},
	}
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var (
		limit       int
		transitions bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent worker calls from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("warn")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{Config: cfg}, false, func(ctx context.Context, a *app.Application) error {
				if transitions {
					recs, err := a.Transitions(ctx, limit)
					if err != nil {
						return err
					}
					printTransitions(cmd.OutOrStdout(), recs)
					return nil
				}
				recs, err := a.History(ctx, limit)
				if err != nil {
					return err
				}
				printCalls(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultLimit, "Number of records")
	cmd.Flags().BoolVar(&transitions, "transitions", false, "Show worker lifecycle transitions instead of calls")
	return cmd
}

func printCalls(w io.Writer, recs []journal.CallRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETHOD\tTOOL\tOUTCOME\tDURATION\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Method,
			r.Tool,
			outcomeColor(r.Outcome).Sprint(r.Outcome),
			r.Duration.Round(time.Microsecond),
			r.Error,
		)
	}
	_ = tw.Flush()
}

func printTransitions(w io.Writer, recs []journal.TransitionRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFROM\tTO\tPID\tRESTARTS\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.At.Local().Format(time.DateTime), r.From, r.To, r.PID, r.Restarts, r.Error)
	}
	_ = tw.Flush()
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the worker's tools over HTTP",
		Long: `Serve starts the worker and exposes its tools as a JSON API:

  GET  /api/tools   list the tool catalog
  POST /api/call    call a tool: {"name": "...", "arguments": {...}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("")
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withApp(ctx, app.Options{Config: cfg}, true, func(ctx context.Context, a *app.Application) error {
				h := web.NewHandler(a.Tools(), a.Logger())
				cyan.Fprintf(cmd.OutOrStdout(), "serving on %s\n", addr)
				return web.Serve(ctx, addr, h.Router(), a.Logger())
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr(), "Listen address (default from PORT)")
	return cmd
}

// defaultServeAddr honours PORT the way hosted environments set it.
func defaultServeAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return web.DefaultAddr
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RetroIDE %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}

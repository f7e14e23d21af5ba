package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/evidence"
	"github.com/zen-systems/switchboard/pkg/mcpserver"
	"github.com/zen-systems/switchboard/pkg/pipeline"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serves POST /run_jury, the /run_jury/stream websocket, POST /infer,
	GET /backends, GET /health and GET /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, loadSettings(v))
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			srv := server.New(a.engine, server.Options{
				Addr:         v.GetString("addr"),
				Version:      version,
				AllowOrigins: v.GetStringSlice("allow-origin"),
				Logger:       a.logger,
				Metrics:      a.metrics,
				Gatherer:     a.registry,
			})

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return <-serverErr
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}

	cmd.Flags().String("addr", ":8000", "listen address")
	cmd.Flags().StringSlice("allow-origin", nil, "CORS origins to allow (default: all)")

	return cmd
}

func askCmd(v *viper.Viper) *cobra.Command {
	var taskFlag string
	var modeFlag string
	var jsonFlag bool
	var traceFlag bool

	cmd := &cobra.Command{
		Use:   "ask [input]",
		Short: "Run one request through the router",
		Long: `Classifies the input, routes it, verifies the answer and falls back once
	if needed. The answer goes to stdout; routing details go to stderr.

	Use "-" as the input to read it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if input == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = string(data)
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, loadSettings(v))
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			resp, runErr := a.engine.Run(ctx, schema.Request{
				Task:  schema.Task(taskFlag),
				Input: input,
				Mode:  schema.Mode(modeFlag),
			})
			return printAnswer(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp, runErr, jsonFlag, traceFlag)
		},
	}

	cmd.Flags().StringVar(&taskFlag, "task", string(schema.TaskSolve), "task category (summarize, research, solve, code, rewrite)")
	cmd.Flags().StringVar(&modeFlag, "mode", string(schema.ModeBest), "routing mode (best, fast, cheap)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full JSON response")
	cmd.Flags().BoolVar(&traceFlag, "trace", false, "print the trace and scoreboard to stderr")

	return cmd
}

func printAnswer(stdout, stderr io.Writer, resp *schema.Response, runErr error, asJSON, withTrace bool) error {
	if runErr != nil {
		if asJSON {
			if err := writeJSON(stdout, pipeline.Describe(runErr)); err != nil {
				return err
			}
		} else {
			var rerr *pipeline.RunError
			if errors.As(runErr, &rerr) && rerr.Partial != nil && withTrace {
				printTrace(stderr, rerr.Partial.Trace)
			}
		}
		return runErr
	}

	if asJSON {
		return writeJSON(stdout, resp)
	}

	fmt.Fprintln(stdout, resp.Final)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Sources:")
		for _, s := range resp.Sources {
			fmt.Fprintln(stdout, "  "+s)
		}
	}

	status := "verified"
	if !resp.Verified {
		status = "not verified"
	}
	fmt.Fprintf(stderr, "Answered by %s (intent=%s, format=%s, %s)\n",
		resp.WinnerModel, resp.TaskSpec.Intent, resp.TaskSpec.ExpectedFormat, status)
	if withTrace {
		printTrace(stderr, resp.Trace)
		printScoreboard(stderr, resp.Scoreboard)
	}
	return nil
}

func mcpCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Runs switchboard as a Model Context Protocol server so agents can call
	run_jury, list_backends and list_routes as tools.`,
		Example: `  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "switchboard": {
  #       "command": "switchboard",
  #       "args": ["mcp", "--log-format", "json"]
  #     }
  #   }
  # }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, loadSettings(v))
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			s := mcpserver.New(a.engine, version, a.logger)
			a.logger.Info("mcp server starting on stdio")
			if err := mcpserver.Serve(ctx, s, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}

func routesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Show the routing table in precedence order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := loadSettings(v)
			cfg, err := loadConfig(s.ConfigFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !s.Mock {
				cfg = displayConfig(cfg)
			} else {
				cfg.UseMock()
			}

			resolved, err := config.Build(cfg)
			if err != nil {
				return err
			}
			sel, err := router.NewSelector(router.PolicyFromConfig(resolved.Routing), resolved.Registry)
			if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), sel.Routes(), resolved.Routing)
		},
	}
}

func printRoutes(out io.Writer, routes []router.RouteInfo, routing config.RoutingConfig) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tRULE\tWHEN\tBACKEND")
	for i, r := range routes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, r.Rule, r.When, r.Backend)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "CLASSIFIER\t%s\t\t\n", routing.Classifier)
	fmt.Fprintf(w, "FALLBACK\t%s\t\t\n", strings.Join(routing.Fallback, ", "))
	return w.Flush()
}

// displayConfig returns a copy of cfg whose backends all use the mock
// adapter, so the routing table can be shown without credentials. Backends
// that would be dropped for a missing key are removed first.
func displayConfig(cfg *config.Config) *config.Config {
	out := *cfg
	out.Backends = nil
	required := map[string]bool{cfg.Routing.Classifier: true}
	for _, id := range []string{cfg.Routing.Routes.Code, cfg.Routing.Routes.Reasoning, cfg.Routing.Routes.General} {
		required[id] = true
	}
	for _, id := range cfg.Routing.Fallback {
		required[id] = true
	}
	for _, b := range cfg.Backends {
		if required[b.ID] || cfg.Credentials.HasAdapter(b.Adapter) {
			out.Backends = append(out.Backends, b)
		}
	}
	out.UseMock()
	return &out
}

func backendsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List configured backends and whether their credentials are present",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := loadSettings(v)
			cfg, err := loadConfig(s.ConfigFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if s.Mock {
				cfg.UseMock()
			}
			return printBackends(cmd.OutOrStdout(), cfg)
		},
	}
}

func printBackends(out io.Writer, cfg *config.Config) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADAPTER\tMODEL\tKIND\tTAGS\tCOST\tSTATUS")
	for _, b := range cfg.Backends {
		status := "no key"
		if cfg.Credentials.HasAdapter(b.Adapter) {
			status = "ready"
		}
		tags := "-"
		if len(b.Tags) > 0 {
			tags = strings.Join(b.Tags, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Adapter, b.Model, b.Kind, tags, b.CostTier, status)
	}
	return w.Flush()
}

func replayCmd() *cobra.Command {
	var runDir string
	var showOutput bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print a recorded run bundle",
		Long: `Reads a run bundle written with --evidence-dir and prints its request,
	trace, scoreboard and per-backend stage records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runDir == "" {
				return fmt.Errorf("--run is required")
			}
			return replay(cmd.OutOrStdout(), runDir, showOutput)
		},
	}

	cmd.Flags().StringVar(&runDir, "run", "", "run directory (<evidence-dir>/<run-id>)")
	cmd.Flags().BoolVar(&showOutput, "output", false, "print each stage's raw output")

	return cmd
}

func replay(out io.Writer, runDir string, showOutput bool) error {
	run, err := evidence.ReadRun(runDir)
	if err != nil {
		return err
	}
	stages, err := evidence.ReadStages(runDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %s at %s (%dms)\n", run.ID, run.Timestamp.Format(time.RFC3339), run.DurationMillis)
	fmt.Fprintf(out, "Task: %s  Mode: %s  Input: %s\n", run.Request.Task, run.Request.Mode, run.InputHash)
	if run.CostUSD > 0 {
		fmt.Fprintf(out, "Estimated cost: $%.4f\n", run.CostUSD)
	}

	switch {
	case run.Response != nil:
		fmt.Fprintf(out, "Winner: %s  Verified: %t\n\n", run.Response.WinnerModel, run.Response.Verified)
		printTrace(out, run.Response.Trace)
		printScoreboard(out, run.Response.Scoreboard)
	case run.Error != nil:
		fmt.Fprintf(out, "Error: %s: %s\n\n", run.Error.Error, run.Error.Message)
		if steps := traceFromDetails(run.Error.Details); len(steps) > 0 {
			printTrace(out, steps)
		}
	}

	if len(stages) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tBACKEND\tVERIFIED\tTOKENS\tCOST\tDURATION\tERROR")
	for _, st := range stages {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t$%.4f\t%dms\t%s\n",
			st.Name, st.BackendID, st.Verified, st.Usage.TotalTokens, st.CostUSD, st.DurationMillis, st.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if showOutput {
		for _, st := range stages {
			if st.OutputRef == "" {
				continue
			}
			data, err := evidence.ReadBlob(runDir, st.OutputRef)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n--- %s (%s) ---\n%s\n", st.Name, st.BackendID, data)
		}
	}
	return nil
}

// traceFromDetails recovers the partial trace from a decoded error body.
func traceFromDetails(details map[string]any) []schema.TraceStep {
	raw, ok := details["trace"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var steps []schema.TraceStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil
	}
	return steps
}

func printTrace(out io.Writer, steps []schema.TraceStep) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tSTEP\tBACKEND\tSTATUS\tLATENCY")
	for _, s := range steps {
		backend := s.BackendID
		if backend == "" {
			backend = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dms\n", s.Seq, s.StepName, backend, s.Status, s.LatencyMs)
	}
	_ = w.Flush()
}

func printScoreboard(out io.Writer, entries []schema.ScoreboardEntry) {
	if len(entries) == 0 {
		return
	}
	sorted := append([]schema.ScoreboardEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QualityEstimate > sorted[j].QualityEstimate
	})

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tQUALITY\tLATENCY\tCOST\tEXECUTED\tNOTES")
	for _, e := range sorted {
		fmt.Fprintf(w, "%s\t%.2f\t%dms\t%s\t%t\t%s\n", e.BackendID, e.QualityEstimate, e.LatencyMs, e.CostTier, e.Executed, e.Notes)
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

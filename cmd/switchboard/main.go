package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/pipeline"
)

var version = "dev"

// settings are the process-level knobs. They come from flags, then
// SWITCHBOARD_* environment variables.
type settings struct {
	ConfigFile   string
	LogLevel     string
	LogFormat    string
	Mock         bool
	EvidenceDir  string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRate   float64
}

func loadSettings(v *viper.Viper) settings {
	return settings{
		ConfigFile:   v.GetString("config"),
		LogLevel:     v.GetString("log-level"),
		LogFormat:    v.GetString("log-format"),
		Mock:         v.GetBool("mock"),
		EvidenceDir:  v.GetString("evidence-dir"),
		OTLPEndpoint: v.GetString("otlp-endpoint"),
		OTLPInsecure: v.GetBool("otlp-insecure"),
		SampleRate:   v.GetFloat64("trace-sample-rate"),
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Task-aware model router with verification and fallback",
		Long: `Switchboard classifies each request, routes it to the backend best suited
	to the task, verifies the answer against the expected format and falls back
	to a different backend once when verification fails. Every step is traced.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is normal.
			_ = godotenv.Load()
			return v.BindPFlags(cmd.Flags())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to config file (default ~/.switchboard/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Bool("mock", false, "route every backend to the in-process mock adapter")
	flags.String("evidence-dir", "", "write a run bundle per request under this directory")
	flags.String("otlp-endpoint", "", "export traces to this OTLP/HTTP endpoint")
	flags.Bool("otlp-insecure", false, "use plain HTTP for the OTLP exporter")
	flags.Float64("trace-sample-rate", 1.0, "fraction of requests to trace")

	v.SetEnvPrefix("SWITCHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(serveCmd(v))
	rootCmd.AddCommand(askCmd(v))
	rootCmd.AddCommand(mcpCmd(v))
	rootCmd.AddCommand(routesCmd(v))
	rootCmd.AddCommand(backendsCmd(v))
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// reportError prints configuration and pipeline failures in the wire error
// shape so scripts can parse them.
func reportError(err error) {
	var cerr *config.ConfigurationError
	var rerr *pipeline.RunError
	if errors.As(err, &cerr) || errors.As(err, &rerr) {
		body := pipeline.Describe(err)
		if rerr != nil {
			// The partial trace is printed by ask itself.
			body.Details = nil
		}
		data, _ := json.MarshalIndent(body, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "batchpace",
		Short:         "Paced batch dispatcher for simulated units of work",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Run flags
	flags.String("target", "", "Identifier or URL the units are aimed at")
	flags.IntP("count", "n", 0, "Number of successful units to dispatch")
	flags.Int("min-count", DefaultMinCount, "Smallest accepted count")
	flags.Int("max-count", DefaultMaxCount, "Largest accepted count")
	flags.String("test-id", "", "Test identifier (generated when empty)")
	flags.String("requester", "", "Identity of the caller recorded with the result")

	// Pacing flags
	flags.Int("batch-cap", DefaultBatchCap, "Maximum concurrent units per batch")
	flags.Duration("batch-pause", DefaultBatchPause, "Pause between batches")
	flags.IntP("speed", "s", DefaultSpeed, "Maximum units per minute (0 disables the ceiling)")
	flags.String("slot-model", string(SlotModelJitter), "Delay between slots: 'jitter', 'uniform' or 'poisson'")
	flags.Bool("abort-in-flight", false, "Cancel in-flight units when the run is stopped")
	flags.Int64("seed", 0, "Random seed for jitter and the simulator (0 uses the clock)")

	// Worker flags
	flags.Duration("min-latency", DefaultMinLatency, "Lower bound of simulated unit latency")
	flags.Duration("max-latency", DefaultMaxLatency, "Upper bound of simulated unit latency")
	flags.Float64("success-probability", DefaultSuccessProbability, "Probability that a simulated unit succeeds")

	// Pool flags
	flags.StringSlice("account", nil, "Account identifier (repeatable)")
	flags.String("accounts-file", "", "Path to an accounts file (json, yaml, toml, csv or txt)")
	flags.StringSlice("proxy", nil, "Proxy identifier (repeatable)")
	flags.String("proxies-file", "", "Path to a proxies file (json, yaml, toml, csv or txt)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed unit to stderr")
	flags.Duration("progress-interval", DefaultProgressInterval, "Interval between progress lines (0 disables)")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Results flags
	flags.String("results-db", "", "Path to a SQLite database that stores final results")
	flags.Int("history", 0, "Print the last N stored results")
	flags.Duration("retention", DefaultRetention, "How long finished sessions stay inspectable")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Thresholds (repeatable, e.g., 'units_failed:rate < 0.2')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for span export")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of runs to trace")
	flags.String("tracing-service-name", "", "Service name reported with spans")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.Target = strings.TrimSpace(val)
	}
	if fs.Changed("count") {
		val, err := fs.GetInt("count")
		if err != nil {
			return err
		}
		cfg.Count = val
	}
	if fs.Changed("min-count") {
		val, err := fs.GetInt("min-count")
		if err != nil {
			return err
		}
		cfg.MinCount = val
	}
	if fs.Changed("max-count") {
		val, err := fs.GetInt("max-count")
		if err != nil {
			return err
		}
		cfg.MaxCount = val
	}
	if fs.Changed("test-id") {
		val, err := fs.GetString("test-id")
		if err != nil {
			return err
		}
		cfg.TestID = strings.TrimSpace(val)
	}
	if fs.Changed("requester") {
		val, err := fs.GetString("requester")
		if err != nil {
			return err
		}
		cfg.RequesterID = strings.TrimSpace(val)
	}
	if fs.Changed("batch-cap") {
		val, err := fs.GetInt("batch-cap")
		if err != nil {
			return err
		}
		cfg.BatchCap = val
	}
	if fs.Changed("batch-pause") {
		val, err := fs.GetDuration("batch-pause")
		if err != nil {
			return err
		}
		cfg.BatchPause = val
	}
	if fs.Changed("speed") {
		val, err := fs.GetInt("speed")
		if err != nil {
			return err
		}
		cfg.Speed = val
	}
	if fs.Changed("slot-model") {
		val, err := fs.GetString("slot-model")
		if err != nil {
			return err
		}
		cfg.SlotModel = SlotModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("abort-in-flight") {
		val, err := fs.GetBool("abort-in-flight")
		if err != nil {
			return err
		}
		cfg.AbortInFlight = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}

	if fs.Changed("min-latency") {
		val, err := fs.GetDuration("min-latency")
		if err != nil {
			return err
		}
		cfg.Worker.MinLatency = val
	}
	if fs.Changed("max-latency") {
		val, err := fs.GetDuration("max-latency")
		if err != nil {
			return err
		}
		cfg.Worker.MaxLatency = val
	}
	if fs.Changed("success-probability") {
		val, err := fs.GetFloat64("success-probability")
		if err != nil {
			return err
		}
		cfg.Worker.SuccessProbability = val
	}

	if fs.Changed("account") {
		val, err := fs.GetStringSlice("account")
		if err != nil {
			return err
		}
		cfg.Accounts = trimAll(val)
	}
	if fs.Changed("accounts-file") {
		val, err := fs.GetString("accounts-file")
		if err != nil {
			return err
		}
		cfg.AccountsFile = strings.TrimSpace(val)
	}
	if fs.Changed("proxy") {
		val, err := fs.GetStringSlice("proxy")
		if err != nil {
			return err
		}
		cfg.Proxies = trimAll(val)
	}
	if fs.Changed("proxies-file") {
		val, err := fs.GetString("proxies-file")
		if err != nil {
			return err
		}
		cfg.ProxiesFile = strings.TrimSpace(val)
	}

	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("progress-interval") {
		val, err := fs.GetDuration("progress-interval")
		if err != nil {
			return err
		}
		cfg.ProgressInterval = val
	}

	if fs.Changed("results-db") {
		val, err := fs.GetString("results-db")
		if err != nil {
			return err
		}
		cfg.ResultsDB = strings.TrimSpace(val)
	}
	if fs.Changed("history") {
		val, err := fs.GetInt("history")
		if err != nil {
			return err
		}
		cfg.History = val
	}
	if fs.Changed("retention") {
		val, err := fs.GetDuration("retention")
		if err != nil {
			return err
		}
		cfg.Retention = val
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}

	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

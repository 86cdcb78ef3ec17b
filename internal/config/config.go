package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults shared by the loader and validation.
const (
	DefaultMinCount           = 10
	DefaultMaxCount           = 10000
	DefaultBatchCap           = 100
	DefaultBatchPause         = time.Second
	DefaultSpeed              = 10000
	DefaultMinLatency         = 500 * time.Millisecond
	DefaultMaxLatency         = 2 * time.Second
	DefaultSuccessProbability = 0.9
	DefaultProgressInterval   = time.Second
	DefaultRetention          = 10 * time.Minute
)

type Config struct {
	Target           string        `mapstructure:"target"`
	Count            int           `mapstructure:"count"`
	MinCount         int           `mapstructure:"min_count"`
	MaxCount         int           `mapstructure:"max_count"`
	TestID           string        `mapstructure:"test_id"`
	RequesterID      string        `mapstructure:"requester"`
	BatchCap         int           `mapstructure:"batch_cap"`
	BatchPause       time.Duration `mapstructure:"batch_pause"`
	Speed            int           `mapstructure:"speed"` // units per minute, 0 disables the ceiling
	SlotModel        SlotModel     `mapstructure:"slot_model"`
	AbortInFlight    bool          `mapstructure:"abort_in_flight"`
	Worker           WorkerConfig  `mapstructure:"worker"`
	Accounts         []string      `mapstructure:"accounts"`
	AccountsFile     string        `mapstructure:"accounts_file"`
	Proxies          []string      `mapstructure:"proxies"`
	ProxiesFile      string        `mapstructure:"proxies_file"`
	ResultsDB        string        `mapstructure:"results_db"`
	History          int           `mapstructure:"history"`
	Retention        time.Duration `mapstructure:"retention"`
	JSONOutput       bool          `mapstructure:"json_output"`
	Dashboard        bool          `mapstructure:"dashboard"`
	LogErrors        bool          `mapstructure:"log_errors"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	Thresholds       []string      `mapstructure:"thresholds"`
	Tracing          TracingConfig `mapstructure:"tracing"`
	Seed             int64         `mapstructure:"seed"`
	ConfigFile       string        `mapstructure:"-"`
}

type SlotModel string

const (
	SlotModelJitter  SlotModel = "jitter"
	SlotModelUniform SlotModel = "uniform"
	SlotModelPoisson SlotModel = "poisson"
)

// WorkerConfig shapes the simulated unit worker.
type WorkerConfig struct {
	MinLatency         time.Duration `mapstructure:"min_latency"`
	MaxLatency         time.Duration `mapstructure:"max_latency"`
	SuccessProbability float64       `mapstructure:"success_probability"`
}

// TracingConfig configures OTLP span export. Tracing is off unless an
// endpoint is set here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// HistoryOnly reports whether the run only prints stored results.
func (c Config) HistoryOnly() bool {
	return c.History > 0 && strings.TrimSpace(c.Target) == "" && c.Count == 0
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if c.History < 0 {
		issues = append(issues, "history must be >= 0")
	}
	if c.History > 0 && strings.TrimSpace(c.ResultsDB) == "" {
		issues = append(issues, "history requires results-db")
	}

	if !c.HistoryOnly() {
		if strings.TrimSpace(c.Target) == "" {
			issues = append(issues, "target is required (use --help for usage information)")
		}
		if c.MinCount < 1 {
			issues = append(issues, "min-count must be >= 1")
		}
		if c.MaxCount < c.MinCount {
			issues = append(issues, "max-count must be >= min-count")
		}
		if c.Count < c.MinCount || c.Count > c.MaxCount {
			issues = append(issues, fmt.Sprintf("count must be between %d and %d, got %d", c.MinCount, c.MaxCount, c.Count))
		}
		if len(c.Accounts) == 0 && strings.TrimSpace(c.AccountsFile) == "" {
			issues = append(issues, "accounts are required (use --account or --accounts-file)")
		}
	}

	if c.BatchCap < 1 {
		issues = append(issues, "batch-cap must be >= 1")
	}
	if c.BatchPause < 0 {
		issues = append(issues, "batch-pause must be >= 0")
	}
	if c.Speed < 0 {
		issues = append(issues, "speed must be >= 0")
	}
	if c.Retention < 0 {
		issues = append(issues, "retention must be >= 0")
	}
	if c.ProgressInterval < 0 {
		issues = append(issues, "progress-interval must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	issues = append(issues, validateSlotModel(c.SlotModel)...)
	issues = append(issues, validateWorkerConfig(c.Worker)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if c.Worker.SuccessProbability == 0 && !c.HistoryOnly() {
		warnings = append(warnings, "WARNING: success probability is 0; the run will only end when stopped.")
	}
	if c.AbortInFlight {
		warnings = append(warnings, "WARNING: abort-in-flight is set; units interrupted by a stop are not counted.")
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateSlotModel(model SlotModel) []string {
	if model == "" {
		return nil
	}
	switch model {
	case SlotModelJitter, SlotModelUniform, SlotModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("slot model %q is not supported", model)}
	}
}

func validateWorkerConfig(w WorkerConfig) []string {
	var issues []string
	if w.MinLatency < 0 || w.MaxLatency < 0 {
		issues = append(issues, "worker: latency must be >= 0")
	}
	if w.MaxLatency < w.MinLatency {
		issues = append(issues, "worker: max-latency must be >= min-latency")
	}
	if w.MaxLatency == 0 {
		issues = append(issues, "worker: max-latency must be > 0")
	}
	if w.SuccessProbability < 0 || w.SuccessProbability > 1 {
		issues = append(issues, fmt.Sprintf("worker: success probability must be between 0 and 1, got %g", w.SuccessProbability))
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

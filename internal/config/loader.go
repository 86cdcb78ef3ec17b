package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Target = strings.TrimSpace(cfg.Target)
	cfg.SlotModel = SlotModel(strings.ToLower(string(cfg.SlotModel)))

	return cfg, nil
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		MinCount:         DefaultMinCount,
		MaxCount:         DefaultMaxCount,
		BatchCap:         DefaultBatchCap,
		BatchPause:       DefaultBatchPause,
		Speed:            DefaultSpeed,
		SlotModel:        SlotModelJitter,
		ProgressInterval: DefaultProgressInterval,
		Retention:        DefaultRetention,
		Worker: WorkerConfig{
			MinLatency:         DefaultMinLatency,
			MaxLatency:         DefaultMaxLatency,
			SuccessProbability: DefaultSuccessProbability,
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.Target = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "count"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		cfg.Count = val
	}

	if raw, ok := lookupSetting(settings, "mincount", "min_count", "min-count"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("minCount: %w", err)
		}
		cfg.MinCount = val
	}

	if raw, ok := lookupSetting(settings, "maxcount", "max_count", "max-count"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("maxCount: %w", err)
		}
		cfg.MaxCount = val
	}

	if raw, ok := lookupSetting(settings, "testid", "test_id", "test-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("testId: %w", err)
		}
		cfg.TestID = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "requester", "requester_id", "requester-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("requester: %w", err)
		}
		cfg.RequesterID = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "batchcap", "batch_cap", "batch-cap"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("batchCap: %w", err)
		}
		cfg.BatchCap = val
	}

	if raw, ok := lookupSetting(settings, "batchpause", "batch_pause", "batch-pause"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("batchPause: %w", err)
		}
		cfg.BatchPause = dur
	}

	if raw, ok := lookupSetting(settings, "speed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("speed: %w", err)
		}
		cfg.Speed = val
	}

	if raw, ok := lookupSetting(settings, "slotmodel", "slot_model", "slot-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("slotModel: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			cfg.SlotModel = SlotModel(strings.ToLower(val))
		}
	}

	if raw, ok := lookupSetting(settings, "abortinflight", "abort_in_flight", "abort-in-flight"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("abortInFlight: %w", err)
		}
		cfg.AbortInFlight = val
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "worker"); ok {
		if err := applyWorkerSettings(&cfg.Worker, raw); err != nil {
			return fmt.Errorf("worker: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "accounts"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("accounts: %w", err)
		}
		cfg.Accounts = trimAll(vals)
	}

	if raw, ok := lookupSetting(settings, "accountsfile", "accounts_file", "accounts-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("accountsFile: %w", err)
		}
		cfg.AccountsFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "proxies"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("proxies: %w", err)
		}
		cfg.Proxies = trimAll(vals)
	}

	if raw, ok := lookupSetting(settings, "proxiesfile", "proxies_file", "proxies-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("proxiesFile: %w", err)
		}
		cfg.ProxiesFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "resultsdb", "results_db", "results-db"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("resultsDb: %w", err)
		}
		cfg.ResultsDB = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "history"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		cfg.History = val
	}

	if raw, ok := lookupSetting(settings, "retention"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("retention: %w", err)
		}
		cfg.Retention = dur
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "progressinterval", "progress_interval", "progress-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("progressInterval: %w", err)
		}
		cfg.ProgressInterval = dur
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyWorkerSettings(w *WorkerConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "minlatency", "min_latency", "min-latency"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("min_latency: %w", err)
		}
		w.MinLatency = dur
	}
	if raw, ok := lookupSetting(settings, "maxlatency", "max_latency", "max-latency"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("max_latency: %w", err)
		}
		w.MaxLatency = dur
	}
	if raw, ok := lookupSetting(settings, "successprobability", "success_probability", "success-probability"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("success_probability: %w", err)
		}
		w.SuccessProbability = val
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	return nil
}

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{" 42 ", 42},
		{"010", 10},
		{"", 0},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{1.5, 1500 * time.Millisecond},
		{" 250ms ", 250 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsFloat64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  float64
	}{
		{0.5, 0.5},
		{"0.25", 0.25},
		{1, 1},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asFloat64(tt.input)
		if err != nil {
			t.Errorf("asFloat64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asFloat64(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsStringSlice(t *testing.T) {
	tests := []struct {
		input interface{}
		want  []string
	}{
		{nil, nil},
		{"alice bob", []string{"alice bob"}},
		{[]interface{}{"alice", 7}, []string{"alice", "7"}},
		{[]string{"p1:8080"}, []string{"p1:8080"}},
	}

	for _, tt := range tests {
		got, err := asStringSlice(tt.input)
		if err != nil {
			t.Errorf("asStringSlice(%v) error = %v", tt.input, err)
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("asStringSlice(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToStringKeyMap(t *testing.T) {
	got, err := toStringKeyMap(map[interface{}]interface{}{" Min_Latency ": "5ms"})
	if err != nil {
		t.Fatalf("toStringKeyMap() error = %v", err)
	}
	if got["min_latency"] != "5ms" {
		t.Errorf("toStringKeyMap() = %v, want min_latency key", got)
	}
	if _, err := toStringKeyMap("fast"); err == nil {
		t.Error("toStringKeyMap(string) error = nil, want error")
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"target":      "https://example.com/post/1",
		"count":       250,
		"batch_cap":   "25",
		"batch_pause": "2s",
		"speed":       600,
		"slot_model":  "Poisson",
		"accounts":    []interface{}{" alice ", "bob", ""},
		"worker": map[string]interface{}{
			"min_latency":         "100ms",
			"max_latency":         "200ms",
			"success_probability": 0.5,
		},
		"tracing": map[interface{}]interface{}{
			"endpoint":    "localhost:4317",
			"sample_rate": "0.5",
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Target != "https://example.com/post/1" {
		t.Errorf("Target = %q", cfg.Target)
	}
	if cfg.Count != 250 {
		t.Errorf("Count = %d, want 250", cfg.Count)
	}
	if cfg.BatchCap != 25 {
		t.Errorf("BatchCap = %d, want 25", cfg.BatchCap)
	}
	if cfg.BatchPause != 2*time.Second {
		t.Errorf("BatchPause = %v, want 2s", cfg.BatchPause)
	}
	if cfg.Speed != 600 {
		t.Errorf("Speed = %d, want 600", cfg.Speed)
	}
	if cfg.SlotModel != SlotModelPoisson {
		t.Errorf("SlotModel = %q, want poisson", cfg.SlotModel)
	}
	if len(cfg.Accounts) != 2 || cfg.Accounts[0] != "alice" || cfg.Accounts[1] != "bob" {
		t.Errorf("Accounts = %v, want [alice bob]", cfg.Accounts)
	}
	if cfg.Worker.MinLatency != 100*time.Millisecond || cfg.Worker.MaxLatency != 200*time.Millisecond {
		t.Errorf("Worker latency = %v..%v", cfg.Worker.MinLatency, cfg.Worker.MaxLatency)
	}
	if cfg.Worker.SuccessProbability != 0.5 {
		t.Errorf("SuccessProbability = %v, want 0.5", cfg.Worker.SuccessProbability)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc", cfg.Tracing.Protocol)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"count":  {"count": "many"},
		"worker": {"worker": "fast"},
		"pause":  {"batch_pause": "soon"},
	}
	for name, settings := range cases {
		t.Run(name, func(t *testing.T) {
			if err := applyConfigSettings(Defaults(), settings); err == nil {
				t.Fatal("applyConfigSettings() error = nil, want error")
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Accounts = []string{"from-file"}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--count=40",
		"--speed=0",
		"--account=a1",
		"--account= a2 ",
		"--proxy=p1,p2",
		"--success-probability=1",
		"--tracing-protocol=HTTP",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Count != 40 {
		t.Errorf("Count = %d, want 40", cfg.Count)
	}
	if cfg.Speed != 0 {
		t.Errorf("Speed = %d, want 0", cfg.Speed)
	}
	if len(cfg.Accounts) != 2 || cfg.Accounts[1] != "a2" {
		t.Errorf("Accounts = %v, want [a1 a2]", cfg.Accounts)
	}
	if len(cfg.Proxies) != 2 {
		t.Errorf("Proxies = %v, want 2 entries", cfg.Proxies)
	}
	if cfg.Worker.SuccessProbability != 1 {
		t.Errorf("SuccessProbability = %v, want 1", cfg.Worker.SuccessProbability)
	}
	if cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing.Protocol = %q, want http", cfg.Tracing.Protocol)
	}
	if cfg.BatchCap != DefaultBatchCap {
		t.Errorf("BatchCap = %d, unchanged flag should keep %d", cfg.BatchCap, DefaultBatchCap)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--target=https://example.com/post/1",
		"--count=20",
		"--slot-model=UNIFORM",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Target != "https://example.com/post/1" {
		t.Errorf("Target = %q", cfg.Target)
	}
	if cfg.Count != 20 {
		t.Errorf("Count = %d, want 20", cfg.Count)
	}
	if cfg.SlotModel != SlotModelUniform {
		t.Errorf("SlotModel = %q, want uniform", cfg.SlotModel)
	}
}

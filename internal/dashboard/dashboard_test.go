package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gizak/termui/v3/widgets"
	"github.com/torosent/batchpace/internal/metrics"
	"github.com/torosent/batchpace/internal/pacer"
	"github.com/torosent/batchpace/internal/rotation"
	"github.com/torosent/batchpace/internal/session"
)

func newTestDashboard(cfg RunConfig) *Dashboard {
	d := &Dashboard{
		summaryPara:   widgets.NewParagraph(),
		progressGauge: widgets.NewGauge(),
		pacerGauge:    widgets.NewGauge(),
		latencyPara:   widgets.NewParagraph(),
		accountList:   widgets.NewList(),
		proxyList:     widgets.NewList(),
		errorList:     widgets.NewList(),
		runConfig:     cfg,
	}
	d.latencySparkle = widgets.NewSparklineGroup(widgets.NewSparkline())
	return d
}

func TestFormatUsageRows(t *testing.T) {
	pool := rotation.New("alice", "bob", "carol")
	for id, n := range map[string]int{"alice": 30, "bob": 60, "carol": 10} {
		for i := 0; i < n; i++ {
			pool.RecordUsage(id)
		}
	}
	rows := formatUsageRows(pool.UsageByID(), 100, 2, "none")

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(rows), rows)
	}
	if !strings.Contains(rows[0], "bob") || !strings.Contains(rows[0], "60.0%") {
		t.Errorf("expected bob first with 60.0%% share, got %s", rows[0])
	}
	if !strings.Contains(rows[1], "alice") {
		t.Errorf("expected alice second, got %s", rows[1])
	}
}

func TestFormatUsageRowsEmpty(t *testing.T) {
	rows := formatUsageRows(nil, 0, 5, "Direct (no proxies)")
	if len(rows) != 1 || !strings.Contains(rows[0], "Direct (no proxies)") {
		t.Fatalf("unexpected empty rows: %v", rows)
	}
}

func TestFormatFailureRows(t *testing.T) {
	tests := []struct {
		name  string
		errs  map[string]int
		limit int
		first string
		count int
	}{
		{"no failures", nil, 10, "No failures", 1},
		{"sorted by count", map[string]int{"Rejected": 3, "Deadline Exceeded": 7}, 10, "Deadline Exceeded", 2},
		{"tie broken by name", map[string]int{"b": 1, "a": 1}, 10, "a", 2},
		{"limited", map[string]int{"a": 1, "b": 2, "c": 3}, 2, "c", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := formatFailureRows(tt.errs, tt.limit)
			if len(rows) != tt.count {
				t.Fatalf("expected %d rows, got %d: %v", tt.count, len(rows), rows)
			}
			if !strings.Contains(rows[0], tt.first) {
				t.Errorf("expected first row to contain %q, got %s", tt.first, rows[0])
			}
		})
	}
}

func TestProgressGauge(t *testing.T) {
	percent, label := progressGauge(nil, 200)
	if percent != 0 || label != "0/200" {
		t.Errorf("progressGauge(nil) = %d, %q", percent, label)
	}

	snap := &session.Snapshot{Target: 200, Sent: 50}
	percent, label = progressGauge(snap, 200)
	if percent != 25 {
		t.Errorf("expected 25%%, got %d", percent)
	}
	if label != "50/200 (25.0%)" {
		t.Errorf("unexpected label %q", label)
	}
}

func TestPacerGauge(t *testing.T) {
	percent, label := pacerGauge(nil)
	if percent != 0 || label != "unlimited" {
		t.Errorf("pacerGauge(nil) = %d, %q", percent, label)
	}

	percent, label = pacerGauge(&pacer.Status{
		Limit:             100,
		CountInWindow:     40,
		Remaining:         30 * time.Second,
		LimitUsagePercent: 40,
	})
	if percent != 40 {
		t.Errorf("expected 40%%, got %d", percent)
	}
	if !strings.Contains(label, "40/100 per min") || !strings.Contains(label, "30s") {
		t.Errorf("unexpected label %q", label)
	}
}

func TestApplyUpdatesWidgets(t *testing.T) {
	d := newTestDashboard(RunConfig{Subject: "demo", TestID: "T1", Count: 100, Speed: 600})

	collector := metrics.NewCollector()
	collector.Start()
	collector.RecordUnit(100*time.Millisecond, true, nil)
	collector.RecordUnit(200*time.Millisecond, false, nil)
	collector.RecordUnit(300*time.Millisecond, false, errors.New("boom"))
	stats := collector.Stats(time.Second)

	accounts := rotation.New("alice", "bob")
	accounts.RecordUsage("alice")
	accounts.RecordUsage("alice")
	accounts.RecordUsage("bob")
	proxies := rotation.New("p1:8080")
	proxies.RecordUsage("p1:8080")

	snap := &session.Snapshot{TestID: "T1", Subject: "demo", Target: 100, Sent: 1, Status: session.StatusRunning}
	ps := &pacer.Status{Limit: 600, CountInWindow: 3, LimitUsagePercent: 0.5}

	d.apply(stats, snap, ps, accounts.UsageByID(), proxies.UsageByID(), 2*time.Second)

	if !strings.Contains(d.summaryPara.Text, "Status: running") {
		t.Errorf("summary missing status: %s", d.summaryPara.Text)
	}
	if !strings.Contains(d.summaryPara.Text, "Units: 3 | Accepted: 1 | Rejected: 2") {
		t.Errorf("summary missing counts: %s", d.summaryPara.Text)
	}
	if d.progressGauge.Percent != 1 {
		t.Errorf("expected progress 1%%, got %d", d.progressGauge.Percent)
	}
	if len(d.latencyHistory) != 1 {
		t.Errorf("expected one latency sample, got %d", len(d.latencyHistory))
	}
	if len(d.accountList.Rows) != 2 || !strings.Contains(d.accountList.Rows[0], "alice") {
		t.Errorf("expected alice as top account, got %v", d.accountList.Rows)
	}
	if !strings.Contains(d.accountList.Rows[0], "2 units") || !strings.Contains(d.accountList.Rows[0], "66.7%") {
		t.Errorf("expected pool counters in account row, got %s", d.accountList.Rows[0])
	}
	if len(d.proxyList.Rows) != 1 || !strings.Contains(d.proxyList.Rows[0], "p1:8080") {
		t.Errorf("unexpected proxy rows: %v", d.proxyList.Rows)
	}
	if len(d.errorList.Rows) != 2 {
		t.Errorf("expected 2 failure rows, got %v", d.errorList.Rows)
	}
}

func TestApplyTrimsLatencyHistory(t *testing.T) {
	d := newTestDashboard(RunConfig{})
	stats := metrics.Stats{Total: 1, MeanLatencyMs: 5}
	for i := 0; i < historySize+10; i++ {
		d.apply(stats, nil, nil, nil, nil, time.Second)
	}
	if len(d.latencyHistory) != historySize {
		t.Fatalf("expected history capped at %d, got %d", historySize, len(d.latencyHistory))
	}
	if !strings.Contains(d.summaryPara.Text, "Status: pending") {
		t.Errorf("expected pending status without snapshot: %s", d.summaryPara.Text)
	}
}

func TestHandleKeyAdjustsSpeed(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		keys    []string
		want    int
		handled bool
	}{
		{"plus raises by a tenth", 600, []string{"+"}, 660, true},
		{"up arrow raises", 600, []string{"<Up>"}, 660, true},
		{"minus lowers by a tenth", 600, []string{"-"}, 540, true},
		{"small limits step by one", 5, []string{"+", "+"}, 7, true},
		{"floor at one", 1, []string{"-"}, 1, false},
		{"unrelated key", 600, []string{"x"}, 600, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pacer.New(pacer.Options{Limit: tt.limit})
			d := &Dashboard{pacer: p}
			var handled bool
			for _, key := range tt.keys {
				handled = d.handleKey(key)
			}
			if handled != tt.handled {
				t.Errorf("handleKey() = %v, want %v", handled, tt.handled)
			}
			if got := p.Limit(); got != tt.want {
				t.Errorf("Limit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleKeyResetsWindow(t *testing.T) {
	p := pacer.New(pacer.Options{Limit: 100})
	for i := 0; i < 5; i++ {
		p.Reserve()
	}
	d := &Dashboard{pacer: p}
	if !d.handleKey("r") {
		t.Fatal("expected reset key to be handled")
	}
	if st := p.Status(); st.CountInWindow != 0 {
		t.Errorf("CountInWindow after reset = %d, want 0", st.CountInWindow)
	}
}

func TestHandleKeyIgnoredWithoutCeiling(t *testing.T) {
	d := &Dashboard{}
	if d.handleKey("+") {
		t.Error("expected no-op without a pacer")
	}
	d.pacer = pacer.New(pacer.Options{})
	if d.handleKey("+") {
		t.Error("expected no-op when pacing is disabled")
	}
	if d.pacer.Limit() != 0 {
		t.Errorf("disabled pacer limit changed to %d", d.pacer.Limit())
	}
}

func TestApplyShowsAdjustedSpeed(t *testing.T) {
	d := newTestDashboard(RunConfig{Speed: 600})
	d.apply(metrics.Stats{}, nil, &pacer.Status{Limit: 660}, nil, nil, time.Second)
	if !strings.Contains(d.summaryPara.Text, "Speed: 660/min") {
		t.Errorf("summary should show the current limit: %s", d.summaryPara.Text)
	}
}

func TestFormatRunParams(t *testing.T) {
	tests := []struct {
		name     string
		config   RunConfig
		contains []string
		excludes []string
	}{
		{
			name: "basic config",
			config: RunConfig{
				Count:      500,
				BatchCap:   100,
				BatchPause: time.Second,
				Speed:      1000,
			},
			contains: []string{"Count: 500", "Batch: 100", "Pause: 1s", "Speed: 1000/min"},
			excludes: []string{"Slots:", "Config:"},
		},
		{
			name:     "unlimited speed",
			config:   RunConfig{Count: 10},
			contains: []string{"Speed: unlimited"},
		},
		{
			name:     "jitter model not shown",
			config:   RunConfig{SlotModel: "jitter"},
			excludes: []string{"Slots:"},
		},
		{
			name:     "poisson model shown",
			config:   RunConfig{SlotModel: "poisson"},
			contains: []string{"Slots: poisson"},
		},
		{
			name:     "pools and config file",
			config:   RunConfig{Accounts: 3, Proxies: 2, ConfigFile: "run.yaml"},
			contains: []string{"Accounts: 3", "Proxies: 2", "Config: run.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatRunParams(tt.config)
			for _, want := range tt.contains {
				if !strings.Contains(result, want) {
					t.Errorf("formatRunParams() = %q, expected to contain %q", result, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(result, unwanted) {
					t.Errorf("formatRunParams() = %q, expected not to contain %q", result, unwanted)
				}
			}
		})
	}
}

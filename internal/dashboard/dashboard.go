package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/batchpace/internal/metrics"
	"github.com/torosent/batchpace/internal/pacer"
	"github.com/torosent/batchpace/internal/rotation"
	"github.com/torosent/batchpace/internal/session"
)

const historySize = 100

// RunConfig holds dispatch parameters for display.
type RunConfig struct {
	Subject    string        // Target identifier being dispatched against
	TestID     string        // Session identifier
	Count      int           // Requested unit count
	BatchCap   int           // Maximum slots per batch
	BatchPause time.Duration // Pause between batches
	Speed      int           // Units per minute (0 = unlimited)
	SlotModel  string        // Slot pacing model
	Accounts   int           // Number of loaded accounts
	Proxies    int           // Number of loaded proxies
	ConfigFile string        // Path to config file if used
}

// Pools are the resource pools whose usage counters the dashboard lists.
type Pools struct {
	Accounts *rotation.Pool
	Proxies  *rotation.Pool
}

// StatusFunc returns the current snapshot of the session being displayed.
type StatusFunc func() (session.Snapshot, bool)

// Dashboard renders a live terminal UI for a dispatch run.
type Dashboard struct {
	collector    *metrics.Collector
	pacer        *pacer.Pacer
	status       StatusFunc
	pools        Pools
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	pacerGauge     *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	accountList    *widgets.List
	proxyList      *widgets.List
	errorList      *widgets.List
	latencyHistory []float64
	startTime      time.Time
	runDuration    time.Duration
	runConfig      RunConfig
}

// New creates a new Dashboard. The pacer, status func and pools may be nil.
func New(collector *metrics.Collector, p *pacer.Pacer, status StatusFunc, pools Pools, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		pacer:          p,
		status:         status,
		pools:          pools,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
		runConfig:      cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Dispatch"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Sent / Target"
	d.progressGauge.BarColor = ui.ColorGreen
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.pacerGauge = widgets.NewGauge()
	d.pacerGauge.Title = "Pacer Window (+/- speed, r reset)"
	d.pacerGauge.BarColor = ui.ColorBlue
	d.pacerGauge.BorderStyle.Fg = ui.ColorCyan
	d.pacerGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Unit Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.accountList = widgets.NewList()
	d.accountList.Title = "Accounts"
	d.accountList.Rows = []string{"Awaiting data"}
	d.accountList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.accountList.BorderStyle.Fg = ui.ColorCyan

	d.proxyList = widgets.NewList()
	d.proxyList.Title = "Proxies"
	d.proxyList.Rows = []string{"Awaiting data"}
	d.proxyList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.proxyList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(0.6, d.progressGauge),
			ui.NewCol(0.4, d.pacerGauge),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.35, d.accountList),
			ui.NewCol(0.35, d.proxyList),
			ui.NewCol(0.30, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.runDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// FinalStats returns the collector statistics after the dashboard has stopped.
func (d *Dashboard) FinalStats() metrics.Stats {
	return d.collector.Stats(d.runDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			default:
				if d.handleKey(e.ID) {
					d.update()
					d.render()
				}
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// handleKey applies the live speed controls to the pacer. It reports whether
// the key changed anything.
func (d *Dashboard) handleKey(id string) bool {
	if !d.pacer.Enabled() {
		return false
	}
	limit := d.pacer.Limit()
	switch id {
	case "+", "=", "<Up>":
		d.pacer.SetLimit(limit + speedStep(limit))
	case "-", "_", "<Down>":
		next := limit - speedStep(limit)
		if next < 1 {
			next = 1
		}
		if next == limit {
			return false
		}
		d.pacer.SetLimit(next)
	case "r":
		d.pacer.Reset()
	default:
		return false
	}
	return true
}

// speedStep is a tenth of the current limit, at least one unit per minute.
func speedStep(limit int) int {
	if step := limit / 10; step > 1 {
		return step
	}
	return 1
}

func (d *Dashboard) update() {
	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	var snap *session.Snapshot
	if d.status != nil {
		if s, ok := d.status(); ok {
			snap = &s
		}
	}
	var ps *pacer.Status
	if d.pacer != nil {
		st := d.pacer.Status()
		ps = &st
	}

	accounts := d.pools.Accounts.UsageByID()
	proxies := d.pools.Proxies.UsageByID()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(stats, snap, ps, accounts, proxies, elapsed)
}

// apply refreshes widget contents. Callers hold d.mu.
func (d *Dashboard) apply(stats metrics.Stats, snap *session.Snapshot, ps *pacer.Status, accounts, proxies []rotation.Entry, elapsed time.Duration) {
	cfg := d.runConfig
	if ps != nil && ps.Limit > 0 {
		cfg.Speed = ps.Limit
	}
	d.summaryPara.Text = formatSummary(cfg, snap, stats, elapsed)

	percent, label := progressGauge(snap, d.runConfig.Count)
	d.progressGauge.Percent = percent
	d.progressGauge.Label = label

	percent, label = pacerGauge(ps)
	d.pacerGauge.Percent = percent
	d.pacerGauge.Label = label

	if stats.Total > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.MeanLatencyMs)
		if len(d.latencyHistory) > historySize {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Unit Latency | Current: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	d.accountList.Rows = formatUsageRows(accounts, stats.Total, 10, "No accounts used yet")
	d.proxyList.Rows = formatUsageRows(proxies, stats.Total, 10, "Direct (no proxies)")
	d.errorList.Rows = formatFailureRows(stats.Errors, 10)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatSummary(cfg RunConfig, snap *session.Snapshot, stats metrics.Stats, elapsed time.Duration) string {
	subject := cfg.Subject
	testID := cfg.TestID
	status := "pending"
	if snap != nil {
		subject = snap.Subject
		testID = snap.TestID
		status = string(snap.Status)
	}
	lines := []string{
		fmt.Sprintf("Subject: %s | Test ID: %s | Status: %s", subject, testID, status),
	}
	if params := formatRunParams(cfg); params != "" {
		lines = append(lines, params)
	}
	lines = append(lines, fmt.Sprintf(
		"Elapsed: %s | Units: %d | Accepted: %d | Rejected: %d | Success Rate: %.1f%%",
		elapsed.Round(time.Second),
		stats.Total,
		stats.Successes,
		stats.Failures,
		stats.SuccessRate()*100,
	))
	return strings.Join(lines, "\n")
}

func progressGauge(snap *session.Snapshot, count int) (int, string) {
	if snap == nil {
		return 0, fmt.Sprintf("0/%d", count)
	}
	percent := int(snap.Progress())
	if percent > 100 {
		percent = 100
	}
	return percent, fmt.Sprintf("%d/%d (%.1f%%)", snap.Sent, snap.Target, snap.Progress())
}

func pacerGauge(ps *pacer.Status) (int, string) {
	if ps == nil || ps.Limit <= 0 {
		return 0, "unlimited"
	}
	percent := int(ps.LimitUsagePercent)
	if percent > 100 {
		percent = 100
	}
	return percent, fmt.Sprintf("%d/%d per min | resets in %s",
		ps.CountInWindow, ps.Limit, ps.Remaining.Round(time.Second))
}

// formatUsageRows lists the first limit entries of a UsageByID result with
// their share of all recorded units.
func formatUsageRows(rows []rotation.Entry, total int64, limit int, empty string) []string {
	if len(rows) == 0 {
		return []string{fmt.Sprintf("[%s](fg:green)", empty)}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		share := 0.0
		if total > 0 {
			share = float64(row.Uses) / float64(total) * 100
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:cyan) | %d units | %5.1f%%", row.ID, row.Uses, share))
	}
	return formatted
}

func formatFailureRows(errs map[string]int, limit int) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	type failureRow struct {
		name  string
		count int
	}
	rows := make([]failureRow, 0, len(errs))
	for name, count := range errs {
		rows = append(rows, failureRow{name: name, count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count == rows[j].count {
			return rows[i].name < rows[j].name
		}
		return rows[i].count > rows[j].count
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", row.name, row.count))
	}
	return formatted
}

// formatRunParams formats the dispatch parameters for display.
func formatRunParams(cfg RunConfig) string {
	var parts []string

	if cfg.Count > 0 {
		parts = append(parts, fmt.Sprintf("Count: %d", cfg.Count))
	}
	if cfg.BatchCap > 0 {
		parts = append(parts, fmt.Sprintf("Batch: %d", cfg.BatchCap))
	}
	if cfg.BatchPause > 0 {
		parts = append(parts, fmt.Sprintf("Pause: %s", cfg.BatchPause))
	}

	if cfg.Speed > 0 {
		parts = append(parts, fmt.Sprintf("Speed: %d/min", cfg.Speed))
	} else {
		parts = append(parts, "Speed: unlimited")
	}

	// Slot model (only show if non-default)
	if cfg.SlotModel != "" && cfg.SlotModel != "jitter" {
		parts = append(parts, fmt.Sprintf("Slots: %s", cfg.SlotModel))
	}

	if cfg.Accounts > 0 {
		parts = append(parts, fmt.Sprintf("Accounts: %d", cfg.Accounts))
	}
	if cfg.Proxies > 0 {
		parts = append(parts, fmt.Sprintf("Proxies: %d", cfg.Proxies))
	}

	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}

package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/batchpace/internal/metrics"
	"github.com/torosent/batchpace/internal/pacer"
	"github.com/torosent/batchpace/internal/session"
)

// StatusFunc returns the current snapshot of the session being reported.
type StatusFunc func() (session.Snapshot, bool)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	pacer     *pacer.Pacer
	status    StatusFunc
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// The pacer may be nil.
func NewProgressReporter(collector *metrics.Collector, p *pacer.Pacer, status StatusFunc, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		pacer:     p,
		status:    status,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	var snap *session.Snapshot
	if p.status != nil {
		if s, ok := p.status(); ok {
			snap = &s
		}
	}
	var stats metrics.Stats
	if p.collector != nil {
		stats = p.collector.Stats(time.Since(p.start))
	}
	var ps *pacer.Status
	if p.pacer.Enabled() {
		st := p.pacer.Status()
		ps = &st
	}
	return FormatProgress(snap, stats, ps)
}

// FormatProgress renders one progress line. Any argument may be absent.
func FormatProgress(snap *session.Snapshot, stats metrics.Stats, ps *pacer.Status) string {
	line := ""
	if snap != nil {
		line = fmt.Sprintf("Sent: %d/%d (%.1f%%) | Status: %s | ", snap.Sent, snap.Target, snap.Progress(), snap.Status)
	}
	line += fmt.Sprintf("Units: %d | Accepted: %d | Rejected: %d | Speed: %.1f/min",
		stats.Total, stats.Successes, stats.Failures, stats.UnitsPerSec*60)
	if ps != nil && ps.Limit > 0 {
		line += fmt.Sprintf(" | Pacer: %d/%d (%.0f%%)", ps.CountInWindow, ps.Limit, ps.LimitUsagePercent)
	}
	return line
}

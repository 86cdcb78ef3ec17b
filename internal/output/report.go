package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/torosent/batchpace/internal/metrics"
	"github.com/torosent/batchpace/internal/pacer"
	"github.com/torosent/batchpace/internal/rotation"
	"github.com/torosent/batchpace/internal/session"
	"github.com/torosent/batchpace/internal/threshold"
)

// Report gathers everything printed at the end of a run. Accounts and
// Proxies hold the pool usage counters, ordered as Pool.UsageByID returns them.
type Report struct {
	Result     session.Result     `json:"result"`
	Stats      metrics.Stats      `json:"stats"`
	Accounts   []rotation.Entry   `json:"accounts,omitempty"`
	Proxies    []rotation.Entry   `json:"proxies,omitempty"`
	Pacer      *pacer.Status      `json:"pacer,omitempty"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// usageRows caps the per-resource breakdown in the text report.
const usageRows = 5

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	res := r.Result
	stats := r.Stats

	fmt.Fprintln(w, "\n--- Dispatch Results ---")
	fmt.Fprintf(w, "Test ID:           %s\n", res.TestID)
	fmt.Fprintf(w, "Subject:           %s\n", res.Subject)
	fmt.Fprintf(w, "Status:            %s\n", res.Status)
	if res.Error != "" {
		fmt.Fprintf(w, "Error:             %s\n", res.Error)
	}
	fmt.Fprintf(w, "Sent:              %d/%d\n", res.UnitsSent, res.Target)
	fmt.Fprintf(w, "Verified (est.):   %d\n", res.UnitsVerified)
	fmt.Fprintf(w, "Success Rate:      %.2f%%\n", res.SuccessRatePercent)
	fmt.Fprintf(w, "Duration:          %s\n", res.Duration())

	fmt.Fprintln(w, "\nUnits:")
	fmt.Fprintf(w, "  Attempted:       %d\n", stats.Total)
	fmt.Fprintf(w, "  Accepted:        %d\n", stats.Successes)
	fmt.Fprintf(w, "  Rejected:        %d\n", stats.Failures)
	fmt.Fprintf(w, "  Units/sec:       %.2f\n", stats.UnitsPerSec)

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		kinds := make([]string, 0, len(stats.Errors))
		for kind := range stats.Errors {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool {
			if stats.Errors[kinds[i]] == stats.Errors[kinds[j]] {
				return kinds[i] < kinds[j]
			}
			return stats.Errors[kinds[i]] > stats.Errors[kinds[j]]
		})
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, stats.Errors[kind])
		}
	}

	writeUsage(w, "Accounts", r.Accounts, stats.Total)
	writeUsage(w, "Proxies", r.Proxies, stats.Total)

	if r.Pacer != nil && r.Pacer.Limit > 0 {
		fmt.Fprintln(w, "\nPacer:")
		fmt.Fprintf(w, "  Limit:           %d/min\n", r.Pacer.Limit)
		fmt.Fprintf(w, "  Window usage:    %d (%.1f%%)\n", r.Pacer.CountInWindow, r.Pacer.LimitUsagePercent)
		fmt.Fprintf(w, "  Current speed:   %.1f/min\n", r.Pacer.CurrentPerMinute)
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, t := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", t.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintHistory lists stored results, newest first.
func PrintHistory(w io.Writer, results []session.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No stored results.")
		return
	}
	fmt.Fprintf(w, "%-28s %-10s %12s %10s %8s  %s\n", "TEST ID", "STATUS", "SENT", "VERIFIED", "RATE", "FINISHED")
	for _, res := range results {
		fmt.Fprintf(w, "%-28s %-10s %12s %10d %7.2f%%  %s\n",
			res.TestID,
			res.Status,
			fmt.Sprintf("%d/%d", res.UnitsSent, res.Target),
			res.UnitsVerified,
			res.SuccessRatePercent,
			res.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}
}

func writeUsage(w io.Writer, title string, rows []rotation.Entry, total int64) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d used):\n", title, len(rows))
	if len(rows) > usageRows {
		rows = rows[:usageRows]
	}
	for _, row := range rows {
		share := 0.0
		if total > 0 {
			share = float64(row.Uses) / float64(total) * 100
		}
		fmt.Fprintf(w, "  - %s: %d (%.1f%%)\n", row.ID, row.Uses, share)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/torosent/batchpace/internal/config"
	"github.com/torosent/batchpace/internal/dashboard"
	"github.com/torosent/batchpace/internal/dispatcher"
	"github.com/torosent/batchpace/internal/metrics"
	"github.com/torosent/batchpace/internal/output"
	"github.com/torosent/batchpace/internal/pacer"
	"github.com/torosent/batchpace/internal/session"
	"github.com/torosent/batchpace/internal/store"
	"github.com/torosent/batchpace/internal/threshold"
	"github.com/torosent/batchpace/internal/tracing"
	"github.com/torosent/batchpace/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// stderrLogger serialises dispatcher and failure lines onto one writer.
type stderrLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var results *store.Store
	if cfg.ResultsDB != "" {
		results, err = store.Open(ctx, cfg.ResultsDB)
		if err != nil {
			return err
		}
		defer results.Close()
	}

	if cfg.HistoryOnly() {
		recent, err := results.Recent(ctx, cfg.History)
		if err != nil {
			return err
		}
		output.PrintHistory(stdout, recent)
		return nil
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	accounts, err := buildPool(ctx, cfg.Accounts, cfg.AccountsFile, kindAccounts)
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	proxies, err := buildPool(ctx, cfg.Proxies, cfg.ProxiesFile, kindProxies)
	if err != nil {
		return fmt.Errorf("proxies: %w", err)
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	logger := &stderrLogger{w: stderr}
	collector := metrics.NewCollector()

	var unit worker.Worker = worker.NewSimulator(worker.SimulatorOptions{
		MinLatency:         cfg.Worker.MinLatency,
		MaxLatency:         cfg.Worker.MaxLatency,
		SuccessProbability: cfg.Worker.SuccessProbability,
		Usage:              accounts,
		ProxyUsage:         proxies,
		Seed:               cfg.Seed,
	})
	unit = worker.WithRecover(unit)
	unit = worker.WithMetrics(unit, collector)
	if cfg.LogErrors {
		unit = worker.WithLogging(unit, logger)
	}
	if provider.Enabled() {
		unit = worker.WithTracing(unit, provider.Tracer())
	}

	pc := pacer.New(pacer.Options{Limit: cfg.Speed, Seed: cfg.Seed})
	spacer := pacer.NewSpacer(pc, pacer.SpacerOptions{
		Model: pacer.Model(cfg.SlotModel),
		Seed:  cfg.Seed,
	})

	opts := dispatcher.Options{
		Worker:        unit,
		Accounts:      accounts,
		Proxies:       proxies,
		Pacer:         pc,
		Spacer:        spacer,
		BatchCap:      cfg.BatchCap,
		BatchPause:    batchPause(cfg.BatchPause),
		AbortInFlight: cfg.AbortInFlight,
		Registry:      session.NewRegistry(cfg.Retention, nil),
		Tracer:        provider.Tracer(),
	}
	if results != nil {
		opts.Finalizer = results
	}
	if !cfg.Dashboard {
		opts.Logger = logger
	}
	disp := dispatcher.New(opts)

	testID := cfg.TestID
	if testID == "" {
		testID = session.NewID()
	}
	status := func() (session.Snapshot, bool) { return disp.Status(testID) }

	// The first signal stops the session cooperatively. Restoring default
	// signal handling lets a second one terminate the process.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		select {
		case <-ctx.Done():
			stopSignals()
			disp.Stop(testID)
		case <-runCtx.Done():
		}
	}()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		pools := dashboard.Pools{Accounts: accounts, Proxies: proxies}
		dash, err = dashboard.New(collector, pc, status, pools, dashboard.RunConfig{
			Subject:    cfg.Target,
			TestID:     testID,
			Count:      cfg.Count,
			BatchCap:   cfg.BatchCap,
			BatchPause: cfg.BatchPause,
			Speed:      cfg.Speed,
			SlotModel:  string(cfg.SlotModel),
			Accounts:   accounts.Len(),
			Proxies:    proxies.Len(),
			ConfigFile: cfg.ConfigFile,
		}, func() { disp.Stop(testID) })
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard && cfg.ProgressInterval > 0 {
		progress = output.NewProgressReporter(collector, pc, status, cfg.ProgressInterval, stdout)
		progress.Start()
	}

	collector.Start()
	res, dispatchErr := disp.Dispatch(runCtx, dispatcher.Request{
		Subject:     cfg.Target,
		Count:       cfg.Count,
		TestID:      testID,
		RequesterID: cfg.RequesterID,
	})

	if progress != nil {
		progress.Stop()
	}
	var stats metrics.Stats
	if dash != nil {
		dash.Stop()
		stats = dash.FinalStats()
	} else {
		stats = collector.Stats(collector.Elapsed())
	}
	if dispatchErr != nil && !errors.Is(dispatchErr, dispatcher.ErrNoAccounts) {
		return dispatchErr
	}

	report := output.Report{
		Result:   res,
		Stats:    stats,
		Accounts: accounts.UsageByID(),
		Proxies:  proxies.UsageByID(),
	}
	if pc.Enabled() {
		ps := pc.Status()
		report.Pacer = &ps
	}
	if len(thresholds) > 0 {
		report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(stats)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if dispatchErr != nil {
		return dispatchErr
	}
	if threshold.Failed(report.Thresholds) {
		return errors.New("one or more thresholds failed")
	}
	return nil
}

// batchPause maps the configured pause onto dispatcher options, where zero
// selects the default and a negative value disables the pause.
func batchPause(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

func (l *stderrLogger) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[batchpace] "+format+"\n", args...)
}

func (l *stderrLogger) LogFailure(account, proxy string, err error) {
	if err == nil {
		return
	}
	if proxy == "" {
		proxy = "direct"
	}
	l.Printf("unit failed (account %s, proxy %s): %v", account, proxy, err)
}

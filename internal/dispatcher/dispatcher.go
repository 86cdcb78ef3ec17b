package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/torosent/batchpace/internal/session"
	"github.com/torosent/batchpace/internal/tracing"
)

var (
	// ErrNoAccounts is returned when a run cannot start because the account
	// pool has no active entries.
	ErrNoAccounts = errors.New("no accounts available")
	// ErrNoWorker is returned when the dispatcher has no unit worker.
	ErrNoWorker = errors.New("unit worker is not configured")
)

// exhaustedBackoff is the minimum pause after a batch in which no slot could
// draw an account.
const exhaustedBackoff = time.Second

// Request describes one dispatch run.
type Request struct {
	Subject     string // URL or identifier the units are aimed at
	Count       int    // units requested; range checks belong to the caller
	TestID      string // optional; generated when empty
	RequesterID string // optional caller identity
}

// Dispatcher drives sessions to their target through sequential batches of
// concurrent unit workers.
type Dispatcher struct {
	opt Options
}

func New(opt Options) *Dispatcher {
	opt.normalize()
	return &Dispatcher{opt: opt}
}

// Dispatch runs a session to completion, cancellation or precondition
// failure. Unit failures never surface here; the only errors returned are
// ErrNoAccounts, ErrNoWorker, invalid requests and duplicate test ids. When
// ErrNoAccounts is returned the result carries the failed session.
//
// Cancelling ctx stops the run like Stop and also aborts in-flight units.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (session.Result, error) {
	if d.opt.Worker == nil {
		return session.Result{}, ErrNoWorker
	}
	id := req.TestID
	if id == "" {
		id = session.NewID()
	}
	s, err := session.New(id, req.Subject, req.RequesterID, req.Count, d.opt.Now())
	if err != nil {
		return session.Result{}, fmt.Errorf("dispatch: %w", err)
	}
	if err := d.opt.Registry.Add(s); err != nil {
		return session.Result{}, fmt.Errorf("dispatch %s: %w", id, err)
	}

	ctx, span := tracing.StartSpan(ctx, d.opt.Tracer, "dispatch",
		attribute.String("batchpace.test_id", id),
		attribute.Int("batchpace.target", req.Count),
	)

	if d.opt.Accounts.ActiveLen() == 0 {
		now := d.opt.Now()
		_ = s.Finish(session.StatusFailed, 0, now)
		res := session.NewResult(s.Snapshot(), now)
		res.Error = ErrNoAccounts.Error()
		d.opt.Logger.Printf("test %s: %v", id, ErrNoAccounts)
		d.finalize(ctx, res)
		tracing.EndSpan(span, ErrNoAccounts)
		return res, ErrNoAccounts
	}

	if err := s.Start(d.opt.Now()); err != nil {
		tracing.EndSpan(span, err)
		return session.Result{}, fmt.Errorf("dispatch %s: %w", id, err)
	}
	d.opt.Logger.Printf("test %s: dispatching %d units to %s", id, s.Target(), req.Subject)

	stopCtx, cancelStop := watchStop(ctx, s)
	defer cancelStop()

	for batch := 1; s.Sent() < s.Target() && !halted(stopCtx, s); batch++ {
		slots := d.opt.BatchCap
		if remaining := s.Target() - s.Sent(); remaining < slots {
			slots = remaining
		}

		stats := d.runBatch(ctx, stopCtx, s, batch, slots)
		sent := s.AddSent(stats.Successes)
		snap := s.Snapshot()
		d.opt.Logger.Printf("test %s: %d/%d (%.1f%%) after batch %d, %d/%d slots accepted",
			id, sent, s.Target(), snap.Progress(), batch, stats.Successes, stats.Slots)
		if d.opt.OnBatch != nil {
			d.opt.OnBatch(snap, stats)
		}

		if sent < s.Target() && !halted(stopCtx, s) {
			pause := d.opt.BatchPause
			if stats.Scheduled == 0 && pause < exhaustedBackoff {
				pause = exhaustedBackoff
			}
			_ = sleep(stopCtx, pause)
		}
	}

	status := session.StatusCompleted
	if s.Sent() < s.Target() {
		status = session.StatusStopped
	}
	// The verified figure is an estimate derived from Sent, not a measurement.
	verified := session.EstimateVerified(s.Sent(), d.opt.Sample)
	now := d.opt.Now()
	if err := s.Finish(status, verified, now); err != nil {
		tracing.EndSpan(span, err)
		return session.Result{}, fmt.Errorf("dispatch %s: %w", id, err)
	}

	res := session.NewResult(s.Snapshot(), now)
	d.opt.Logger.Printf("test %s %s: %d sent, %d verified (estimate, %.1f%%)",
		id, res.Status, res.UnitsSent, res.UnitsVerified, res.SuccessRatePercent)
	d.finalize(ctx, res)
	tracing.EndSpan(span, nil,
		attribute.String("batchpace.status", string(res.Status)),
		attribute.Int("batchpace.sent", res.UnitsSent),
	)
	return res, nil
}

// runBatch schedules up to slots units sequentially and waits for all of
// them. Draws from the pools happen in slot order.
func (d *Dispatcher) runBatch(ctx, stopCtx context.Context, s *session.Session, index, slots int) BatchStats {
	start := time.Now()
	testID := s.ID()
	stats := BatchStats{Index: index, Slots: slots}
	_, span := tracing.StartSpan(ctx, d.opt.Tracer, "batch",
		attribute.String("batchpace.test_id", testID),
		attribute.Int("batchpace.batch", index),
		attribute.Int("batchpace.slots", slots),
	)

	workerCtx := ctx
	if d.opt.AbortInFlight {
		workerCtx = stopCtx
	}

	var (
		wg        sync.WaitGroup
		successes int64
	)
	for slot := 0; slot < slots; slot++ {
		if halted(stopCtx, s) {
			break
		}
		account, ok := d.opt.Accounts.Next()
		if !ok {
			d.opt.Logger.Printf("test %s: no active account for slot %d of batch %d, skipping", testID, slot, index)
			continue
		}
		var proxy string
		if p, ok := d.opt.Proxies.Next(); ok {
			proxy = p.ID
		}
		if err := d.opt.Pacer.Admit(stopCtx); err != nil {
			break
		}

		stats.Scheduled++
		wg.Add(1)
		go func(account, proxy string) {
			defer wg.Done()
			if d.perform(workerCtx, testID, account, proxy) {
				atomic.AddInt64(&successes, 1)
			}
		}(account.ID, proxy)

		if slot < slots-1 {
			if err := d.opt.Spacer.Wait(stopCtx); err != nil {
				break
			}
		}
	}
	wg.Wait()

	stats.Successes = int(atomic.LoadInt64(&successes))
	stats.Duration = time.Since(start)
	tracing.EndSpan(span, nil,
		attribute.Int("batchpace.scheduled", stats.Scheduled),
		attribute.Int("batchpace.successes", stats.Successes),
	)
	return stats
}

// perform runs one unit. Errors and panics count as an unsuccessful unit.
func (d *Dispatcher) perform(ctx context.Context, testID, account, proxy string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.opt.Logger.Printf("test %s: unit with account %s panicked: %v", testID, account, r)
			ok = false
		}
	}()
	ok, err := d.opt.Worker.Perform(ctx, account, proxy)
	if err != nil {
		d.opt.Logger.Printf("test %s: unit with account %s failed: %v", testID, account, err)
		return false
	}
	return ok
}

func (d *Dispatcher) finalize(ctx context.Context, res session.Result) {
	if d.opt.Finalizer == nil {
		return
	}
	if err := d.opt.Finalizer.Finalize(context.WithoutCancel(ctx), res); err != nil {
		d.opt.Logger.Printf("test %s: finalize: %v", res.TestID, err)
	}
}

// Status returns the current snapshot of a retained session.
func (d *Dispatcher) Status(testID string) (session.Snapshot, bool) {
	return d.opt.Registry.Snapshot(testID)
}

// Stop requests cooperative cancellation. It returns true only when a running
// session existed and this call delivered the signal.
func (d *Dispatcher) Stop(testID string) bool {
	return d.opt.Registry.Stop(testID)
}

// Active returns snapshots of sessions that have not finished.
func (d *Dispatcher) Active() map[string]session.Snapshot {
	return d.opt.Registry.Active()
}

// Sessions returns snapshots of every retained session.
func (d *Dispatcher) Sessions() map[string]session.Snapshot {
	return d.opt.Registry.All()
}

func halted(stopCtx context.Context, s *session.Session) bool {
	return stopCtx.Err() != nil || s.Stopping()
}

// watchStop derives a context that is cancelled when ctx ends or a stop is
// requested on s.
func watchStop(ctx context.Context, s *session.Session) (context.Context, context.CancelFunc) {
	stopCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.StopRequested():
			cancel()
		case <-stopCtx.Done():
		}
	}()
	return stopCtx, cancel
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

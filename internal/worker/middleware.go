package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/batchpace/internal/metrics"
	"github.com/torosent/batchpace/internal/tracing"
)

// PanicError wraps a panic recovered from a worker.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// FailureLogger logs failed units.
type FailureLogger interface {
	LogFailure(account, proxy string, err error)
}

// WithRecover converts a panicking worker into a failed unit.
func WithRecover(w Worker) Worker {
	return Func(func(ctx context.Context, account, proxy string) (ok bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				ok, err = false, &PanicError{Value: r}
			}
		}()
		return w.Perform(ctx, account, proxy)
	})
}

// WithLogging wraps a Worker to log failures. Units rejected without an
// error are not logged.
func WithLogging(w Worker, logger FailureLogger) Worker {
	if logger == nil {
		return w
	}
	return Func(func(ctx context.Context, account, proxy string) (bool, error) {
		ok, err := w.Perform(ctx, account, proxy)
		if err != nil {
			logger.LogFailure(account, proxy, err)
		}
		return ok, err
	})
}

// WithMetrics records each unit's latency and outcome in collector.
func WithMetrics(w Worker, collector *metrics.Collector) Worker {
	if collector == nil {
		return w
	}
	return Func(func(ctx context.Context, account, proxy string) (bool, error) {
		start := time.Now()
		ok, err := w.Perform(ctx, account, proxy)
		collector.RecordUnit(time.Since(start), ok, err)
		return ok, err
	})
}

// WithTracing wraps each unit in a span.
func WithTracing(w Worker, tracer trace.Tracer) Worker {
	if tracer == nil {
		return w
	}
	return Func(func(ctx context.Context, account, proxy string) (bool, error) {
		ctx, span := tracing.StartSpan(ctx, tracer, "unit",
			attribute.String("batchpace.account", account),
			attribute.Bool("batchpace.proxied", proxy != ""),
		)
		ok, err := w.Perform(ctx, account, proxy)
		tracing.EndSpan(span, err, attribute.Bool("batchpace.accepted", ok))
		return ok, err
	})
}

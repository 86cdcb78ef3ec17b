package dispatcher

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/batchpace/internal/pacer"
	"github.com/torosent/batchpace/internal/rotation"
	"github.com/torosent/batchpace/internal/session"
	"github.com/torosent/batchpace/internal/worker"
)

// Defaults applied by Options.normalize.
const (
	DefaultBatchCap   = 100
	DefaultBatchPause = time.Second
)

// Logger receives progress and failure lines.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Finalizer receives the final result of every run exactly once, e.g. for
// durable storage.
type Finalizer interface {
	Finalize(ctx context.Context, res session.Result) error
}

// Options configure a Dispatcher.
type Options struct {
	Worker   worker.Worker  // unit executor (required)
	Accounts *rotation.Pool // account rotation (required for a run to start)
	Proxies  *rotation.Pool // optional proxy rotation

	// Pacer enforces the per-minute ceiling. It may be shared between
	// dispatchers; nil disables the ceiling.
	Pacer *pacer.Pacer
	// Spacer waits between slot admissions. Defaults to the pacer's jittered
	// suggested delay.
	Spacer pacer.Spacer

	BatchCap   int           // maximum slots per batch
	BatchPause time.Duration // pause between batches (negative disables)

	// AbortInFlight passes the stop signal to in-flight workers instead of
	// letting them finish.
	AbortInFlight bool

	Registry  *session.Registry
	Finalizer Finalizer
	Logger    Logger
	Tracer    trace.Tracer

	// OnBatch is called after each batch has been added to the session.
	OnBatch func(snap session.Snapshot, batch BatchStats)

	Now    func() time.Time
	Sample func() float64 // verification estimate source in [0, 1)
}

// BatchStats summarises one batch.
type BatchStats struct {
	Index     int
	Slots     int
	Scheduled int
	Successes int
	Duration  time.Duration
}

func (o *Options) normalize() {
	if o.BatchCap <= 0 {
		o.BatchCap = DefaultBatchCap
	}
	if o.BatchPause == 0 {
		o.BatchPause = DefaultBatchPause
	}
	if o.BatchPause < 0 {
		o.BatchPause = 0
	}
	if o.Spacer == nil {
		o.Spacer = pacer.NewSpacer(o.Pacer, pacer.SpacerOptions{Model: pacer.ModelJitter})
	}
	if o.Registry == nil {
		o.Registry = session.NewRegistry(session.DefaultRetention, o.Now)
	}
	if o.Logger == nil {
		o.Logger = discardLogger{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("batchpace")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sample == nil {
		src := &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
		o.Sample = src.Float64
	}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

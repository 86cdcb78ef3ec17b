package pacer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Model selects how slots within a batch are spaced.
type Model string

const (
	// ModelJitter waits Pacer.SuggestedDelay between slots.
	ModelJitter Model = "jitter"
	// ModelUniform spaces slots evenly through a token bucket.
	ModelUniform Model = "uniform"
	// ModelPoisson samples exponential gaps with the same mean spacing.
	ModelPoisson Model = "poisson"
)

// Spacer blocks between consecutive slot admissions.
type Spacer interface {
	Wait(ctx context.Context) error
}

// SpacerOptions configure NewSpacer.
type SpacerOptions struct {
	Model          Model
	Seed           int64
	Sampler        func() float64                         // exponential sampler override for tests
	LimiterFactory func(perSecond float64) *rate.Limiter // optional injection for tests
}

// NewSpacer builds the slot spacer for p. A nil or disabled pacer yields a
// spacer that never waits.
func NewSpacer(p *Pacer, opt SpacerOptions) Spacer {
	limit := p.Limit()
	if limit <= 0 {
		return noWait{}
	}
	perSecond := ratePerSecond(limit)

	switch opt.Model {
	case ModelUniform:
		factory := opt.LimiterFactory
		if factory == nil {
			factory = func(perSecond float64) *rate.Limiter {
				return rate.NewLimiter(rate.Limit(perSecond), 1)
			}
		}
		return &uniformSpacer{pacer: p, limit: limit, limiter: factory(perSecond)}
	case ModelPoisson:
		sampler := opt.Sampler
		if sampler == nil {
			seed := opt.Seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			sampler = rand.New(rand.NewSource(seed)).ExpFloat64
		}
		return &poissonSpacer{pacer: p, sample: sampler}
	default:
		return jitterSpacer{pacer: p}
	}
}

type noWait struct{}

func (noWait) Wait(ctx context.Context) error { return ctx.Err() }

// jitterSpacer sleeps the pacer's jittered per-unit spacing.
type jitterSpacer struct {
	pacer *Pacer
}

func (j jitterSpacer) Wait(ctx context.Context) error {
	return sleep(ctx, j.pacer.SuggestedDelay())
}

// uniformSpacer delegates pacing to a rate.Limiter (uniform spacing). The
// limiter follows limit changes made on the pacer.
type uniformSpacer struct {
	pacer   *Pacer
	mu      sync.Mutex
	limit   int
	limiter *rate.Limiter
}

func (u *uniformSpacer) Wait(ctx context.Context) error {
	if u.limiter == nil {
		return nil
	}
	u.follow()
	return u.limiter.Wait(ctx)
}

func (u *uniformSpacer) follow() {
	limit := u.pacer.Limit()
	u.mu.Lock()
	defer u.mu.Unlock()
	if limit <= 0 || limit == u.limit {
		return
	}
	u.limit = limit
	u.limiter.SetLimit(rate.Limit(ratePerSecond(limit)))
}

// poissonSpacer samples exponential inter-arrival times to approximate a Poisson process.
type poissonSpacer struct {
	mu     sync.Mutex
	pacer  *Pacer
	sample func() float64
}

func (p *poissonSpacer) Wait(ctx context.Context) error {
	return sleep(ctx, p.nextDelay())
}

func (p *poissonSpacer) nextDelay() time.Duration {
	perSec := ratePerSecond(p.pacer.Limit())
	p.mu.Lock()
	defer p.mu.Unlock()

	if perSec <= 0 || p.sample == nil {
		return 0
	}
	value := p.sample()
	delay := float64(time.Second) * value / perSec
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}

func ratePerSecond(limit int) float64 {
	return float64(limit) / Window.Seconds()
}

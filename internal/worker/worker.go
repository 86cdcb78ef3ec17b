package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Defaults for the simulated unit.
const (
	DefaultMinLatency         = 500 * time.Millisecond
	DefaultMaxLatency         = 2 * time.Second
	DefaultSuccessProbability = 0.9
)

// Worker performs one unit of work with an account and an optional proxy
// (empty when no proxy pool is configured). A unit either succeeds or not;
// a non-nil error is always treated as an unsuccessful unit.
type Worker interface {
	Perform(ctx context.Context, account, proxy string) (bool, error)
}

// Func adapts a function to the Worker interface.
type Func func(ctx context.Context, account, proxy string) (bool, error)

func (f Func) Perform(ctx context.Context, account, proxy string) (bool, error) {
	return f(ctx, account, proxy)
}

// UsageRecorder is notified once per completed unit with the identifier used.
type UsageRecorder interface {
	RecordUsage(id string) bool
}

// SimulatorOptions configure a Simulator. A zero latency band selects the
// default 500ms-2s band.
type SimulatorOptions struct {
	MinLatency         time.Duration
	MaxLatency         time.Duration
	SuccessProbability float64       // in [0, 1]
	Usage              UsageRecorder // account usage
	ProxyUsage         UsageRecorder // proxy usage, only for proxied units
	Seed               int64         // 0 uses the current time
}

func (o *SimulatorOptions) normalize() {
	if o.MinLatency <= 0 && o.MaxLatency <= 0 {
		o.MinLatency = DefaultMinLatency
		o.MaxLatency = DefaultMaxLatency
	}
	if o.MinLatency < 0 {
		o.MinLatency = 0
	}
	if o.MaxLatency < o.MinLatency {
		o.MaxLatency = o.MinLatency
	}
	if o.SuccessProbability < 0 {
		o.SuccessProbability = 0
	}
	if o.SuccessProbability > 1 {
		o.SuccessProbability = 1
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
}

// Simulator stands in for real work: it sleeps for a random latency within
// [MinLatency, MaxLatency] and succeeds with SuccessProbability. It performs
// no I/O.
type Simulator struct {
	opt SimulatorOptions
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulator(opt SimulatorOptions) *Simulator {
	opt.normalize()
	return &Simulator{opt: opt, rnd: rand.New(rand.NewSource(opt.Seed))}
}

func (s *Simulator) Perform(ctx context.Context, account, proxy string) (bool, error) {
	if account == "" {
		return false, fmt.Errorf("account is required")
	}
	latency, roll := s.draw()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	if s.opt.Usage != nil {
		s.opt.Usage.RecordUsage(account)
	}
	if s.opt.ProxyUsage != nil && proxy != "" {
		s.opt.ProxyUsage.RecordUsage(proxy)
	}
	return roll < s.opt.SuccessProbability, nil
}

func (s *Simulator) draw() (time.Duration, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.opt.MinLatency
	if span := s.opt.MaxLatency - s.opt.MinLatency; span > 0 {
		latency += time.Duration(s.rnd.Int63n(int64(span) + 1))
	}
	return latency, s.rnd.Float64()
}

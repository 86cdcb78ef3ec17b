package pacer

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Window is the accounting period for the per-minute ceiling.
const Window = time.Minute

// Options configure a Pacer.
type Options struct {
	Limit int              // units per Window (<= 0 disables pacing)
	Now   func() time.Time // optional clock injection for tests
	Seed  int64            // jitter seed; 0 uses the current time
}

// Pacer enforces a maximum number of admissions per fixed one-minute window.
// The window is rolled lazily on each admission; no background timer runs.
// A Pacer may be shared by several dispatch runs.
type Pacer struct {
	mu          sync.Mutex
	limit       int
	windowStart time.Time
	count       int
	now         func() time.Time
	rnd         *rand.Rand
}

// Status is a point-in-time view of the pacer.
type Status struct {
	Limit             int           `json:"limit"`
	CountInWindow     int           `json:"count_in_window"`
	Elapsed           time.Duration `json:"-"`
	Remaining         time.Duration `json:"-"`
	ElapsedSeconds    float64       `json:"elapsed_seconds"`
	RemainingSeconds  float64       `json:"remaining_seconds"`
	CurrentPerMinute  float64       `json:"current_per_minute"`
	SlotDelay         time.Duration `json:"-"`
	SlotDelaySeconds  float64       `json:"slot_delay_seconds"`
	LimitUsagePercent float64       `json:"limit_usage_percent"`
}

func New(opt Options) *Pacer {
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	seed := opt.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pacer{
		limit:       opt.Limit,
		windowStart: now(),
		now:         now,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

// Enabled reports whether a ceiling is configured.
func (p *Pacer) Enabled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit > 0
}

// Reserve books one admission and returns how long the caller must wait
// before proceeding. Zero means the unit is admitted immediately.
//
// When the current window is full, the admission is booked as the first unit
// of the next window and the wait runs until that window opens. Overflow on a
// saturated pacer keeps booking later windows, so the wait grows by Window
// for every window already booked ahead.
func (p *Pacer) Reserve() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit <= 0 {
		return 0
	}

	now := p.now()
	elapsed := now.Sub(p.windowStart)
	if elapsed >= Window {
		p.windowStart = now
		p.count = 0
		elapsed = 0
	}

	if p.count < p.limit {
		p.count++
		// A window booked ahead of time by an earlier overflow has not opened yet.
		if elapsed < 0 {
			return -elapsed
		}
		return 0
	}

	wait := Window - elapsed
	p.windowStart = p.windowStart.Add(Window)
	p.count = 1
	return wait
}

// Admit reserves an admission and suspends until it is granted. It only
// returns an error when ctx is done first.
func (p *Pacer) Admit(ctx context.Context) error {
	return sleep(ctx, p.Reserve())
}

// SuggestedDelay returns the ideal spacing between units (Window/limit) with
// +/-10% jitter. It is advisory and independent of the Reserve ceiling.
func (p *Pacer) SuggestedDelay() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit <= 0 {
		return 0
	}
	base := float64(Window) / float64(p.limit)
	factor := 0.9 + p.rnd.Float64()*0.2
	return time.Duration(base * factor)
}

// SlotDelay returns the unjittered spacing between units.
func (p *Pacer) SlotDelay() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotDelayLocked()
}

func (p *Pacer) slotDelayLocked() time.Duration {
	if p.limit <= 0 {
		return 0
	}
	return Window / time.Duration(p.limit)
}

// Limit returns the configured units per window.
func (p *Pacer) Limit() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// SetLimit adjusts the ceiling. The current window's count is kept.
func (p *Pacer) SetLimit(limit int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.limit = limit
	p.mu.Unlock()
}

// Reset starts a fresh window now.
func (p *Pacer) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.windowStart = p.now()
	p.count = 0
	p.mu.Unlock()
}

func (p *Pacer) Status() Status {
	if p == nil {
		return Status{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.windowStart)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := Window - elapsed
	if remaining < 0 {
		remaining = 0
	}

	st := Status{
		Limit:            p.limit,
		CountInWindow:    p.count,
		Elapsed:          elapsed,
		Remaining:        remaining,
		ElapsedSeconds:   elapsed.Seconds(),
		RemainingSeconds: remaining.Seconds(),
		SlotDelay:        p.slotDelayLocked(),
	}
	st.SlotDelaySeconds = st.SlotDelay.Seconds()
	if elapsed > 0 {
		st.CurrentPerMinute = float64(p.count) / elapsed.Minutes()
	}
	if p.limit > 0 {
		st.LimitUsagePercent = float64(p.count) * 100 / float64(p.limit)
	}
	return st
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

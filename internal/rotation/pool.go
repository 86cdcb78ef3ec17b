package rotation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is a single reusable identifier held by a Pool (an account or a proxy).
type Entry struct {
	ID         string    `json:"id"`
	Active     bool      `json:"active"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	Uses       int64     `json:"uses"`
}

// Pool hands out identifiers in round-robin order. It is safe for concurrent use.
//
// Selection uses a call counter private to the pool: the n-th call to Next
// returns active[n mod len(active)]. If entries are deactivated between calls
// the index wraps against the current active count, so an entry may be skipped
// or revisited once.
type Pool struct {
	mu      sync.Mutex
	entries []*Entry
	byID    map[string]*Entry
	active  []*Entry
	calls   uint64
	now     func() time.Time
}

// New creates a pool where every identifier is active. Blank and duplicate
// identifiers are ignored.
func New(ids ...string) *Pool {
	entries := make([]Entry, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, Entry{ID: id, Active: true})
	}
	p, _ := NewFromEntries(entries)
	return p
}

// NewFromEntries creates a pool preserving the given order and activity flags.
// Identifiers must be non-blank and unique.
func NewFromEntries(entries []Entry) (*Pool, error) {
	p := &Pool{
		entries: make([]*Entry, 0, len(entries)),
		byID:    make(map[string]*Entry, len(entries)),
		now:     time.Now,
	}
	for i, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("entry %d: identifier is required", i)
		}
		if _, dup := p.byID[id]; dup {
			return nil, fmt.Errorf("entry %d: duplicate identifier %q", i, id)
		}
		entry := e
		entry.ID = id
		p.entries = append(p.entries, &entry)
		p.byID[id] = &entry
	}
	p.rebuildActive()
	return p, nil
}

// SetClock replaces the time source used for LastUsedAt. Intended for tests.
func (p *Pool) SetClock(now func() time.Time) {
	if p == nil || now == nil {
		return
	}
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// Next returns the next active entry in rotation and stamps its LastUsedAt.
// It returns false when the pool is nil or has no active entries.
func (p *Pool) Next() (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.active) == 0 {
		return Entry{}, false
	}
	entry := p.active[p.calls%uint64(len(p.active))]
	p.calls++
	entry.LastUsedAt = p.now()
	return *entry, true
}

// LeastRecentlyUsed returns the active entry with the oldest LastUsedAt,
// breaking ties by pool order. It does not advance the rotation.
func (p *Pool) LeastRecentlyUsed() (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var oldest *Entry
	for _, e := range p.active {
		if oldest == nil || e.LastUsedAt.Before(oldest.LastUsedAt) {
			oldest = e
		}
	}
	if oldest == nil {
		return Entry{}, false
	}
	return *oldest, true
}

// RecordUsage increments the usage counter for id. It reports whether the
// identifier exists in the pool.
func (p *Pool) RecordUsage(id string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.byID[id]
	if !ok {
		return false
	}
	entry.Uses++
	return true
}

// SetActive toggles whether id participates in rotation.
func (p *Pool) SetActive(id string, active bool) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.byID[id]
	if !ok {
		return false
	}
	if entry.Active != active {
		entry.Active = active
		p.rebuildActive()
	}
	return true
}

// Len returns the number of entries regardless of activity.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// ActiveLen returns the number of entries currently in rotation.
func (p *Pool) ActiveLen() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// ActiveIDs returns the identifiers in rotation, in pool order.
func (p *Pool) ActiveIDs() []string {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, len(p.active))
	for i, e := range p.active {
		ids[i] = e.ID
	}
	return ids
}

// Entries returns a copy of all entries in pool order.
func (p *Pool) Entries() []Entry {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = *e
	}
	return out
}

// UsageByID returns usage counts for entries used at least once, sorted by
// descending count and then identifier.
func (p *Pool) UsageByID() []Entry {
	entries := p.Entries()
	used := entries[:0]
	for _, e := range entries {
		if e.Uses > 0 {
			used = append(used, e)
		}
	}
	sort.SliceStable(used, func(i, j int) bool {
		if used[i].Uses == used[j].Uses {
			return used[i].ID < used[j].ID
		}
		return used[i].Uses > used[j].Uses
	})
	return used
}

func (p *Pool) rebuildActive() {
	p.active = p.active[:0]
	for _, e := range p.entries {
		if e.Active {
			p.active = append(p.active, e)
		}
	}
}

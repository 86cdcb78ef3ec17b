package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a dispatch run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition is returned when a status change is not permitted.
var ErrInvalidTransition = errors.New("invalid session transition")

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusStopped, StatusFailed},
	StatusRunning: {StatusCompleted, StatusStopped},
}

// Session is the record of truth for one dispatch run. Counters are only
// mutated by the dispatcher that owns the session; readers use Snapshot.
type Session struct {
	mu          sync.Mutex
	id          string
	subject     string
	requesterID string
	target      int
	sent        int
	verified    int
	finalized   bool
	status      Status
	createdAt   time.Time
	startedAt   time.Time
	endedAt     time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Snapshot is an immutable copy of a Session.
//
// Verified is an estimate derived from Sent when the run finishes; it is not
// a measured count.
type Snapshot struct {
	TestID            string     `json:"test_id"`
	Subject           string     `json:"subject"`
	RequesterID       string     `json:"requester_id,omitempty"`
	Target            int        `json:"target"`
	Sent              int        `json:"sent"`
	Verified          int        `json:"verified"`
	VerifiedEstimated bool       `json:"verified_estimated"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

// Progress returns Sent as a percentage of Target.
func (s Snapshot) Progress() float64 {
	if s.Target <= 0 {
		return 0
	}
	return float64(s.Sent) / float64(s.Target) * 100
}

// New creates a pending session. Target must be positive.
func New(id, subject, requesterID string, target int, now time.Time) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if target <= 0 {
		return nil, fmt.Errorf("session target must be > 0, got %d", target)
	}
	return &Session{
		id:          id,
		subject:     subject,
		requesterID: requesterID,
		target:      target,
		status:      StatusPending,
		createdAt:   now,
		stopCh:      make(chan struct{}),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Target() int { return s.target }

// Sent returns the number of successful units so far.
func (s *Session) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start moves a pending session to running.
func (s *Session) Start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(StatusRunning); err != nil {
		return err
	}
	s.startedAt = now
	return nil
}

// AddSent adds n successful units, clamped so Sent never exceeds Target.
// It returns the updated total. Terminal sessions are not modified.
func (s *Session) AddSent(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || s.status.Terminal() {
		return s.sent
	}
	s.sent += n
	if s.sent > s.target {
		s.sent = s.target
	}
	return s.sent
}

// Finish moves the session to a terminal status and records the verification
// estimate, clamped to [0, Sent].
func (s *Session) Finish(status Status, verified int, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(status); err != nil {
		return err
	}
	if verified < 0 {
		verified = 0
	}
	if verified > s.sent {
		verified = s.sent
	}
	s.verified = verified
	s.finalized = status != StatusFailed
	s.endedAt = now
	return nil
}

// RequestStop signals cooperative cancellation. It returns true only for the
// first request made while the session is not terminal.
func (s *Session) RequestStop() bool {
	if s.Status().Terminal() {
		return false
	}
	signaled := false
	s.stopOnce.Do(func() {
		close(s.stopCh)
		signaled = true
	})
	return signaled
}

// StopRequested is closed once RequestStop succeeds.
func (s *Session) StopRequested() <-chan struct{} {
	return s.stopCh
}

// Stopping reports whether a stop has been requested.
func (s *Session) Stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TestID:            s.id,
		Subject:           s.subject,
		RequesterID:       s.requesterID,
		Target:            s.target,
		Sent:              s.sent,
		Verified:          s.verified,
		VerifiedEstimated: s.finalized,
		Status:            s.status,
		CreatedAt:         s.createdAt,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		snap.EndedAt = &ended
	}
	return snap
}

func (s *Session) transitionLocked(next Status) error {
	for _, allowed := range transitions[s.status] {
		if allowed == next {
			s.status = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, next)
}

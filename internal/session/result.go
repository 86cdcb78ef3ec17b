package session

import (
	"math"
	"time"
)

// Result is the final record of a dispatch run, handed to report and
// persistence collaborators.
type Result struct {
	TestID             string    `json:"test_id"`
	Subject            string    `json:"subject"`
	RequesterID        string    `json:"requester_id,omitempty"`
	Target             int       `json:"target"`
	UnitsSent          int       `json:"units_sent"`
	UnitsVerified      int       `json:"units_verified_estimate"`
	SuccessRatePercent float64   `json:"success_rate_percent"`
	Status             Status    `json:"status"`
	Error              string    `json:"error,omitempty"`
	StartedAt          time.Time `json:"started_at,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewResult builds a Result from a finished snapshot. SuccessRatePercent is
// 100*verified/sent rounded to two decimals.
func NewResult(snap Snapshot, now time.Time) Result {
	res := Result{
		TestID:        snap.TestID,
		Subject:       snap.Subject,
		RequesterID:   snap.RequesterID,
		Target:        snap.Target,
		UnitsSent:     snap.Sent,
		UnitsVerified: snap.Verified,
		Status:        snap.Status,
		Timestamp:     now,
	}
	if snap.StartedAt != nil {
		res.StartedAt = *snap.StartedAt
	}
	if snap.EndedAt != nil {
		res.Timestamp = *snap.EndedAt
	}
	if snap.Sent > 0 {
		rate := float64(snap.Verified) / float64(snap.Sent) * 100
		res.SuccessRatePercent = math.Round(rate*100) / 100
	}
	return res
}

// Duration returns the wall time between start and the final timestamp.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.Timestamp.Before(r.StartedAt) {
		return 0
	}
	return r.Timestamp.Sub(r.StartedAt)
}

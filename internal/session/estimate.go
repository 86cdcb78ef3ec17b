package session

import "math"

// Bounds of the verification estimate, as fractions of units sent.
const (
	VerifyMinRatio = 0.6
	VerifyMaxRatio = 0.8
)

// EstimateVerified returns floor(sent * r) with r drawn uniformly from
// [VerifyMinRatio, VerifyMaxRatio) using sample, which must return values in
// [0, 1). The result is a placeholder estimate, not a measurement.
func EstimateVerified(sent int, sample func() float64) int {
	if sent <= 0 || sample == nil {
		return 0
	}
	ratio := VerifyMinRatio + sample()*(VerifyMaxRatio-VerifyMinRatio)
	return int(math.Floor(float64(sent) * ratio))
}

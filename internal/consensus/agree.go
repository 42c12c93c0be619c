package consensus

import "math"

// Tolerance returns the largest gap between two deltas that still counts as
// agreement. Larger deltas are allowed a wider gap.
func (c Config) Tolerance(a, b int) int {
	m := max(abs(a), abs(b))
	switch {
	case m <= c.SmallDelta:
		return c.SmallTolerance
	case m <= c.MediumDelta:
		return c.MediumTolerance
	default:
		return c.LargeTolerance
	}
}

// AgreeDelta reports whether two reviewer deltas agree and, if so, the
// rounded average clamped to the configured bound. Both deltas must be
// nonzero and point the same way.
func AgreeDelta(a, b int, cfg Config) (int, bool) {
	if a == 0 || b == 0 || (a > 0) != (b > 0) {
		return 0, false
	}
	if abs(a-b) > cfg.Tolerance(a, b) {
		return 0, false
	}
	avg := int(math.Round(float64(a+b) / 2))
	return max(-cfg.DeltaBound, min(cfg.DeltaBound, avg)), true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package sifter

import "math"

const (
	// A best match this many standard deviations above the pass-one mean
	// is treated as certain.
	goodMatchStd = 25.0
	// At or below this many standard deviations the match is noise.
	poorMatchStd = 1.0
)

// StdAway reports how many population standard deviations best lies above
// the mean of counts. It is 0 when counts is empty or has no spread.
func StdAway(best int, counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(len(counts))

	var variance float64
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (float64(best) - mean) / std
}

// Confidence maps a std-away score linearly onto [0, 1].
func Confidence(stdAway float64) float64 {
	c := (stdAway - poorMatchStd) / (goodMatchStd - poorMatchStd)
	return math.Max(0, math.Min(1, c))
}

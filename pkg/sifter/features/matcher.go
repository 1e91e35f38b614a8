package features

import (
	"math"
)

// Details summarises how well a query set matched a training set.
type Details struct {
	NumMatches      int
	TotalDistance   float64
	AverageDistance float64
}

// NoMatch is the zero-quality result: no matches and the worst possible
// average distance.
func NoMatch() Details {
	return Details{AverageDistance: math.MaxFloat32}
}

type pairing struct {
	queryIdx int
	trainIdx int
	distance float64
}

// Compare matches every query descriptor against its two nearest training
// descriptors, keeps those passing the nearest/second-nearest distance ratio
// test, then drops every match landing on a training descriptor that more
// than one query descriptor claimed. All of those go, not just the extras.
func Compare(query, train *Set, ratio float64) Details {
	if query.Len() == 0 || train.Len() < 2 {
		return NoMatch()
	}

	good := make([]pairing, 0, query.Len())
	for qi, q := range query.Descriptors {
		best, second := math.MaxFloat64, math.MaxFloat64
		bestIdx := -1
		for ti, t := range train.Descriptors {
			d := squaredDistance(q, t)
			if d < best {
				second = best
				best = d
				bestIdx = ti
			} else if d < second {
				second = d
			}
		}
		if bestIdx < 0 || second == 0 {
			continue
		}
		d1, d2 := math.Sqrt(best), math.Sqrt(second)
		if d1/d2 > ratio {
			continue
		}
		good = append(good, pairing{queryIdx: qi, trainIdx: bestIdx, distance: d1})
	}

	hits := make(map[int]int, len(good))
	for _, m := range good {
		hits[m.trainIdx]++
	}

	details := Details{}
	for _, m := range good {
		if hits[m.trainIdx] > 1 {
			continue
		}
		details.NumMatches++
		details.TotalDistance += m.distance
	}
	if details.NumMatches == 0 {
		return NoMatch()
	}
	details.AverageDistance = details.TotalDistance / float64(details.NumMatches)
	return details
}

func squaredDistance(a, b []float32) float64 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float64(sum)
}

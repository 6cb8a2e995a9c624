package mediapool

import "sort"

// selectVictim decides which resident allocation, if any, must make room for
// requester.
//
// Residents are ordered by ascending distance; among equal distances the
// earliest allocation sorts last, so the longest-resident consumer goes first.
// The last resident is the candidate. It is evicted only when the requester
// is strictly closer; otherwise the request is denied so that an eviction
// never leaves the pool farther from the viewing position than before.
func selectVictim(allocs []allocation, requester Consumer) (allocation, bool) {
	if len(allocs) == 0 {
		return allocation{}, false
	}

	type ranked struct {
		a        allocation
		distance float64
	}
	sorted := make([]ranked, len(allocs))
	for i, a := range allocs {
		sorted[i] = ranked{a: a, distance: normalizeDistance(a.consumer.Distance())}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].distance != sorted[j].distance {
			return sorted[i].distance < sorted[j].distance
		}
		return sorted[i].a.seq > sorted[j].a.seq
	})

	victim := sorted[len(sorted)-1]
	if victim.distance <= normalizeDistance(requester.Distance()) {
		return allocation{}, false
	}
	return victim.a, true
}

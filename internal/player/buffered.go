package player

import "sort"

// rangeStitchEpsilon tolerates the tiny gaps decoders report between
// adjacent buffered spans.
const rangeStitchEpsilon = 0.05

// MergeRanges normalizes a buffered-range list: sorted by start, with
// overlapping or near-adjacent spans coalesced. The input is not mutated.
func MergeRanges(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartSec < sorted[j].StartSec })

	out := make([]TimeRange, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.StartSec <= cur.EndSec+rangeStitchEpsilon {
			if r.EndSec > cur.EndSec {
				cur.EndSec = r.EndSec
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}

// CoverageFrom returns how many contiguous seconds are buffered starting at
// fromSec. Spans that begin within the stitch epsilon of fromSec still count.
func CoverageFrom(ranges []TimeRange, fromSec float64) float64 {
	for _, r := range MergeRanges(ranges) {
		if fromSec >= r.StartSec-rangeStitchEpsilon && fromSec < r.EndSec {
			return r.EndSec - fromSec
		}
	}
	return 0
}

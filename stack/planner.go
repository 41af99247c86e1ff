package stack

// suggestCompactionSegment picks a contiguous range [start, end) of sizes to
// merge using a geometric size-tiered heuristic. A candidate segment is
// valid only if every table in it is strictly smaller than factor times the
// sum of the tables after it within the segment; a table that already
// dominates its younger neighbors by at least that much is already in good
// tiered shape and merging it in would do a lot of rewrite work for little
// benefit. Among all valid segments of at least two tables, the one
// spanning the most tables is returned; if none qualifies, an empty range
// is returned.
func suggestCompactionSegment(sizes []int, factor int) (start, end int) {
	n := len(sizes)
	if n < 2 {
		return 0, 0
	}
	if factor <= 0 {
		factor = 2
	}

	bestStart, bestEnd := 0, 0
	for s := 0; s < n; s++ {
		// Grow the candidate segment [s, e) one table at a time, tracking
		// the running sum of everything already in it. A boundary at i
		// (s <= i < e-1) is balanced if sizes[i] is strictly less than factor
		// times the sum of sizes[i+1:e]; the candidate only survives while
		// every internal boundary stays balanced.
		suffixSum := 0
		for e := n; e > s; e-- {
			suffixSum = 0
			for i := e - 1; i > s; i-- {
				suffixSum += sizes[i]
				if int64(sizes[i-1]) >= int64(factor)*int64(suffixSum) {
					goto nextEnd
				}
			}
			if e-s >= 2 && e-s > bestEnd-bestStart {
				bestStart, bestEnd = s, e
			}
		nextEnd:
		}
	}
	return bestStart, bestEnd
}

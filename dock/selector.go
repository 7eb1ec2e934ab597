package dock

// SelectBest returns the highest scoring estimate. Equal scores resolve to the lowest
// candidate index, and an empty slice yields the sentinel.
func SelectBest(estimates []PoseEstimate) PoseEstimate {
	best := Sentinel()
	found := false
	for _, e := range estimates {
		if !found || e.Score > best.Score ||
			(e.Score == best.Score && e.CandidateIndex < best.CandidateIndex) {
			best = e
			found = true
		}
	}
	return best
}

package debate

// hasConverged checks the three convergence criteria after a round is
// scored: the round bound, a vote supermajority, or a decisive score
// margin between the top two proposals.
func hasConverged(round, maxRounds int, votes map[string]string, scores map[string]float64, voteThreshold, scoreMargin float64) bool {
	if round >= maxRounds {
		return true
	}

	if len(votes) > 0 {
		counts := make(map[string]int)
		for _, proposalID := range votes {
			counts[proposalID]++
		}
		for _, n := range counts {
			if float64(n)/float64(len(votes)) >= voteThreshold {
				return true
			}
		}
	}

	if len(scores) >= 2 {
		top, second := topTwo(scores)
		if top-second > scoreMargin {
			return true
		}
	}
	return false
}

func topTwo(scores map[string]float64) (top, second float64) {
	top, second = -1, -1
	for _, s := range scores {
		switch {
		case s > top:
			second = top
			top = s
		case s > second:
			second = s
		}
	}
	return top, second
}

package debate

import "github.com/swarmos-ai/swarmos/pkg/models"

// Scoring weights: vote share, average critique, stated confidence, and
// evidence count (capped at evidenceCap items).
const (
	weightVotes      = 0.35
	weightCritiques  = 0.35
	weightConfidence = 0.15
	weightEvidence   = 0.15

	evidenceCap     = 5
	neutralCritique = 5.0
)

// scoreProposals computes the weighted score in [0,1] for each
// current-round proposal. voterCount is the number of agents eligible to
// vote; a proposal with no critiques scores them neutrally.
func scoreProposals(proposals []*models.Proposal, critiques []*models.DebateCritique, votes map[string]string, voterCount int) map[string]float64 {
	voteCounts := make(map[string]int, len(proposals))
	for _, proposalID := range votes {
		voteCounts[proposalID]++
	}

	critiqueSums := make(map[string]float64, len(proposals))
	critiqueCounts := make(map[string]int, len(proposals))
	for _, c := range critiques {
		critiqueSums[c.TargetProposalID] += c.Score
		critiqueCounts[c.TargetProposalID]++
	}

	scores := make(map[string]float64, len(proposals))
	for _, p := range proposals {
		voteShare := 0.0
		if voterCount > 0 {
			voteShare = float64(voteCounts[p.ID]) / float64(voterCount)
		}

		avgCritique := neutralCritique
		if n := critiqueCounts[p.ID]; n > 0 {
			avgCritique = critiqueSums[p.ID] / float64(n)
		}

		evidence := float64(len(p.Evidence)) / evidenceCap
		if evidence > 1 {
			evidence = 1
		}

		score := weightVotes*voteShare +
			weightCritiques*avgCritique/10 +
			weightConfidence*p.Confidence +
			weightEvidence*evidence
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[p.ID] = score
	}
	return scores
}

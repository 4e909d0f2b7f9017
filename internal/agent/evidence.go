package agent

import "github.com/nusantara-labs/oracle/pkg/models"

// Evidence policy thresholds. Answers below the abstain threshold are
// replaced with the canned abstention; answers between the thresholds
// are re-queried once with an explicit weakness warning.
const (
	AbstainThreshold = 0.3
	WarnThreshold    = 0.6
)

// AbstentionMessage is the canned answer used whenever the evidence
// cannot support a response. It is deliberately bland: "I don't know"
// beats a confident hallucination.
const AbstentionMessage = "I could not find verified information to answer this question. " +
	"Please rephrase, or contact our team directly for an up-to-date answer."

// scoreEvidence maps gathered sources to [0,1]. Zero sources score
// exactly zero. The function is monotonic: more sources and higher
// per-source scores never lower the result.
func scoreEvidence(sources []models.Source, hasTrustedEvidence bool) float64 {
	if len(sources) == 0 {
		return 0
	}

	var sum float64
	for _, src := range sources {
		sum += clampScore(src.Score)
	}
	avg := sum / float64(len(sources))

	countFactor := float64(len(sources)) / 3.0
	if countFactor > 1 {
		countFactor = 1
	}

	score := 0.55*avg + 0.30*countFactor
	if hasTrustedEvidence {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}
	return score
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

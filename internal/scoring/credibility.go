package scoring

import "math"

const (
	credibilityMin = 25
	credibilityMax = 92

	avgYesFactor       = 0.25
	overallScoreFactor = 0.15

	// Completeness below this costs up to maxCompletenessPenalty points.
	completenessPenaltyFrom = 95
	maxCompletenessPenalty  = 5.0
)

var credibilityBase = map[Rating]float64{
	Aligned:          88,
	Aligning:         72,
	PartiallyAligned: 52,
	Misaligned:       28,
}

// CredibilityScore nudges the category's base value by the average yes percentage and the
// overall score, subtracts a completeness penalty and clamps to [25, 92].
func CredibilityScore(rating Rating, avgYes, overallScore float64, completeness int) int {
	raw := credibilityBase[rating] +
		(avgYes-50)*avgYesFactor +
		(overallScore-50)*overallScoreFactor -
		completenessPenalty(completeness)
	return clampCredibility(raw)
}

func completenessPenalty(completeness int) float64 {
	if completeness >= completenessPenaltyFrom {
		return 0
	}
	return math.Min(maxCompletenessPenalty, float64(completenessPenaltyFrom-completeness)*0.1)
}

func clampCredibility(raw float64) int {
	score := int(math.Round(raw))
	if score < credibilityMin {
		return credibilityMin
	}
	if score > credibilityMax {
		return credibilityMax
	}
	return score
}

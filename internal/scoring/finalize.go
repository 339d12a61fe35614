package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/jonathan/credibility-assessor/internal/evaluation"
)

// Rating is the categorical overall result.
type Rating string

const (
	Aligned          Rating = "Aligned"
	Aligning         Rating = "Aligning"
	PartiallyAligned Rating = "Partially Aligned"
	Misaligned       Rating = "Misaligned"
)

const (
	alignedThreshold = 65
	baseThreshold    = 35
	partialThreshold = 15
	// Below this completeness the aligned and base thresholds drop by thresholdRelief.
	lowCompleteness = 70
	thresholdRelief = 5

	baseWeight    = 0.6
	averageWeight = 0.4

	downgradeBelow = 25
	upgradeAbove   = 75
	upgradesNeeded = 2
)

// Outcome is the result of Finalize.
type Outcome struct {
	OverallResult        Rating   `json:"overall_result"`
	CredibilityScore     int      `json:"credibility_score"`
	RedFlagTriggered     bool     `json:"red_flag_triggered"`
	RedFlagQuestions     []string `json:"red_flag_questions"`
	Reasoning            string   `json:"reasoning"`
	TotalScore           float64  `json:"total_score"`
	MaxPossibleScore     float64  `json:"max_possible_score"`
	OverallScore         float64  `json:"overall_score"`
	Completeness         int      `json:"completeness"`
	CombinedScore        int      `json:"combined_score"`
	AverageYesPercentage float64  `json:"average_yes_percentage"`
}

// Finalize derives the overall rating from section results. The red-flag rule runs first and
// short-circuits everything else. Otherwise the combined score of the base section and the
// average is bucketed by threshold and adjusted by the depth and action sections.
func Finalize(sections []SectionResult, roles Roles) Outcome {
	if roles == nil {
		roles = DefaultRoles()
	}

	total, maxScore, processed, expected := Totals(sections)
	out := Outcome{
		RedFlagQuestions: []string{},
		TotalScore:       total,
		MaxPossibleScore: maxScore,
		Completeness:     percent(processed, expected, 100),
	}
	if maxScore > 0 {
		out.OverallScore = 100 * total / maxScore
	}
	out.AverageYesPercentage = averageYes(sections)

	var reasons []string
	redIdx := roles.Find(RoleRedFlag, sections)
	if redIdx < 0 {
		reasons = append(reasons, "No red flag section found; red flag check skipped")
	} else if red := sections[redIdx]; red.NoCount > 0 {
		for _, ev := range red.Evaluations {
			if ev.Response == evaluation.No {
				out.RedFlagQuestions = append(out.RedFlagQuestions, ev.QuestionText)
			}
		}
		out.RedFlagTriggered = true
		out.OverallResult = Misaligned
		reasons = append(reasons, fmt.Sprintf("Red flag triggered in %q: %d question(s) answered No (%s)",
			red.SectionTitle, red.NoCount, strings.Join(out.RedFlagQuestions, "; ")))
		reasons = append(reasons, fmt.Sprintf("Completeness %d%%", out.Completeness))
		out.Reasoning = strings.Join(reasons, ". ")
		out.CredibilityScore = CredibilityScore(out.OverallResult, out.AverageYesPercentage, out.OverallScore, out.Completeness)
		return out
	}

	baseIdx := roles.Find(RoleAccountability, sections)
	baseLabel := "accountability section"
	if baseIdx < 0 {
		baseIdx = largestSection(sections)
		baseLabel = "largest section"
	}
	if baseIdx < 0 {
		out.OverallResult = Misaligned
		reasons = append(reasons, "No sections to score")
		out.Reasoning = strings.Join(reasons, ". ")
		out.CredibilityScore = CredibilityScore(out.OverallResult, out.AverageYesPercentage, out.OverallScore, out.Completeness)
		return out
	}
	base := sections[baseIdx]

	out.CombinedScore = int(math.Round(baseWeight*float64(base.YesPercentage) + averageWeight*out.AverageYesPercentage))
	rating := rate(out.CombinedScore, out.Completeness)
	reasons = append(reasons, fmt.Sprintf("Combined score %d from %s %q (%d%% yes) and average yes %.1f%%",
		out.CombinedScore, baseLabel, base.SectionTitle, base.YesPercentage, out.AverageYesPercentage))

	var upgrades, downgrades []string
	for _, role := range []Role{RoleDepth, RoleAction} {
		i := roles.Find(role, sections)
		if i < 0 || sections[i].Total == 0 {
			continue
		}
		s := sections[i]
		switch {
		case s.YesPercentage < downgradeBelow:
			downgrades = append(downgrades, fmt.Sprintf("%s (%d%% yes)", s.SectionTitle, s.YesPercentage))
			rating = downgrade(rating)
		case s.YesPercentage > upgradeAbove:
			upgrades = append(upgrades, fmt.Sprintf("%s (%d%% yes)", s.SectionTitle, s.YesPercentage))
		}
	}
	if len(downgrades) > 0 {
		reasons = append(reasons, "Downgraded by "+strings.Join(downgrades, ", "))
	}
	if len(upgrades) >= upgradesNeeded && len(downgrades) == 0 && rating == Aligning {
		rating = Aligned
		reasons = append(reasons, "Upgraded by "+strings.Join(upgrades, ", "))
	} else if len(upgrades) > 0 {
		reasons = append(reasons, "Strong sections: "+strings.Join(upgrades, ", "))
	}

	if out.Completeness < lowCompleteness {
		reasons = append(reasons, fmt.Sprintf("Completeness %d%%, thresholds lowered by %d points", out.Completeness, thresholdRelief))
	} else {
		reasons = append(reasons, fmt.Sprintf("Completeness %d%%", out.Completeness))
	}

	out.OverallResult = rating
	out.Reasoning = strings.Join(reasons, ". ")
	out.CredibilityScore = CredibilityScore(rating, out.AverageYesPercentage, out.OverallScore, out.Completeness)
	return out
}

// rate buckets a combined score.
func rate(combined, completeness int) Rating {
	aligned, base := alignedThreshold, baseThreshold
	if completeness < lowCompleteness {
		aligned -= thresholdRelief
		base -= thresholdRelief
	}
	switch {
	case combined >= aligned:
		return Aligned
	case combined >= base:
		return Aligning
	case combined >= partialThreshold:
		return PartiallyAligned
	default:
		return Misaligned
	}
}

// downgrade moves one tier down, never below Partially Aligned. Misaligned is left as is.
func downgrade(r Rating) Rating {
	switch r {
	case Aligned:
		return Aligning
	case Aligning:
		return PartiallyAligned
	default:
		return r
	}
}

// averageYes is the mean yes percentage over sections with at least one evaluation.
func averageYes(sections []SectionResult) float64 {
	sum, n := 0, 0
	for _, s := range sections {
		if s.Total == 0 {
			continue
		}
		sum += s.YesPercentage
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// largestSection returns the section with the most expected questions, first on ties.
func largestSection(sections []SectionResult) int {
	best := -1
	for i, s := range sections {
		if best < 0 || s.Expected > sections[best].Expected {
			best = i
		}
	}
	return best
}

// Package scoring aggregates question evaluations into section results and derives the
// overall rating and credibility score.
package scoring

import (
	"math"

	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
)

// SectionResult summarizes the evaluations of one section.
type SectionResult struct {
	SectionID         string                  `json:"section_id"`
	SectionTitle      string                  `json:"section_title"`
	YesCount          int                     `json:"yes_count"`
	NoCount           int                     `json:"no_count"`
	InsufficientCount int                     `json:"insufficient_count"`
	Total             int                     `json:"total"`
	Expected          int                     `json:"expected"`
	YesPercentage     int                     `json:"yes_percentage"`
	Completeness      int                     `json:"completeness"`
	Score             float64                 `json:"score"`
	MaxScore          float64                 `json:"max_score"`
	Evaluations       []evaluation.Evaluation `json:"evaluations"`
}

// Aggregate groups evaluations by section in questionnaire order. Sections that are not part of
// q are appended in first-seen order. A question evaluated more than once counts once, first
// evaluation wins. Aggregate has no side effects.
func Aggregate(q *questionnaire.Questionnaire, evals []evaluation.Evaluation) []SectionResult {
	var results []SectionResult
	index := make(map[string]int)

	if q != nil {
		for _, s := range q.Sections {
			index[s.ID] = len(results)
			results = append(results, SectionResult{
				SectionID:    s.ID,
				SectionTitle: s.Title,
				Expected:     len(s.Questions),
				Evaluations:  []evaluation.Evaluation{},
			})
		}
	}
	known := len(results)

	seen := make(map[string]bool)
	for _, ev := range evals {
		if seen[ev.QuestionID] {
			continue
		}
		seen[ev.QuestionID] = true

		i, ok := index[ev.SectionID]
		if !ok {
			i = len(results)
			index[ev.SectionID] = i
			results = append(results, SectionResult{
				SectionID:    ev.SectionID,
				SectionTitle: ev.SectionTitle,
				Evaluations:  []evaluation.Evaluation{},
			})
		}

		r := &results[i]
		r.Evaluations = append(r.Evaluations, ev)
		r.Total++
		r.Score += ev.Score
		r.MaxScore += ev.MaxScore
		switch ev.Response {
		case evaluation.Yes:
			r.YesCount++
		case evaluation.No:
			r.NoCount++
		default:
			r.InsufficientCount++
		}
	}

	for i := range results {
		r := &results[i]
		if i >= known {
			r.Expected = r.Total
		}
		r.YesPercentage = percent(r.YesCount, r.Total, 0)
		r.Completeness = percent(r.Total, r.Expected, 100)
	}
	return results
}

// Totals sums score, max score, processed and expected counts over sections.
func Totals(sections []SectionResult) (score, maxScore float64, processed, expected int) {
	for _, s := range sections {
		score += s.Score
		maxScore += s.MaxScore
		processed += s.Total
		expected += s.Expected
	}
	return score, maxScore, processed, expected
}

// percent returns round(100 × part/whole), or empty when whole is zero.
func percent(part, whole, empty int) int {
	if whole <= 0 {
		return empty
	}
	return int(math.Round(100 * float64(part) / float64(whole)))
}

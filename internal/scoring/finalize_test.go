package scoring

import (
	"testing"

	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func section(id string, yesPct, total int) SectionResult {
	return SectionResult{
		SectionID:     id,
		SectionTitle:  id,
		YesPercentage: yesPct,
		YesCount:      total * yesPct / 100,
		Total:         total,
		Expected:      total,
		Completeness:  100,
		Score:         float64(total * yesPct / 100),
		MaxScore:      float64(total),
	}
}

func redFlagSection(noTexts ...string) SectionResult {
	s := SectionResult{SectionID: "red_flags", SectionTitle: "Red Flags", Completeness: 100}
	for i, text := range noTexts {
		s.Evaluations = append(s.Evaluations, evaluation.Evaluation{QuestionID: string(rune('a' + i)), QuestionText: text, Response: evaluation.No, MaxScore: 1})
		s.NoCount++
		s.Total++
		s.Expected++
		s.MaxScore++
	}
	return s
}

func TestFinalize_RedFlagPrecedence(t *testing.T) {
	sections := []SectionResult{
		section("accountability", 95, 20),
		redFlagSection("Does the plan avoid unproven offsets?"),
	}

	out := Finalize(sections, nil)
	assert.Equal(t, Misaligned, out.OverallResult)
	assert.True(t, out.RedFlagTriggered)
	assert.Equal(t, []string{"Does the plan avoid unproven offsets?"}, out.RedFlagQuestions)
	assert.Contains(t, out.Reasoning, "Red flag triggered")
}

func TestFinalize_RedFlagSectionWithoutNo(t *testing.T) {
	red := SectionResult{SectionID: "misaligned_practices", SectionTitle: "Practices", YesCount: 1, Total: 1, Expected: 1, YesPercentage: 100, MaxScore: 1, Score: 1}
	out := Finalize([]SectionResult{section("accountability", 80, 10), red}, nil)

	assert.False(t, out.RedFlagTriggered)
	assert.Empty(t, out.RedFlagQuestions)
	assert.NotEqual(t, Misaligned, out.OverallResult)
	assert.NotContains(t, out.Reasoning, "red flag check skipped")
}

func TestFinalize_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		yesPct int
		want   Rating
	}{
		{65, Aligned},
		{64, Aligning},
		{35, Aligning},
		{34, PartiallyAligned},
		{15, PartiallyAligned},
		{14, Misaligned},
	}

	for _, tt := range tests {
		out := Finalize([]SectionResult{section("accountability", tt.yesPct, 100)}, nil)
		assert.Equal(t, tt.yesPct, out.CombinedScore)
		assert.Equal(t, tt.want, out.OverallResult, "combined %d", tt.yesPct)
	}
}

func TestFinalize_LowCompletenessLowersThresholds(t *testing.T) {
	s := section("accountability", 60, 10)
	s.Expected = 20

	out := Finalize([]SectionResult{s}, nil)
	assert.Equal(t, 50, out.Completeness)
	assert.Equal(t, Aligned, out.OverallResult)
	assert.Contains(t, out.Reasoning, "thresholds lowered")

	full := Finalize([]SectionResult{section("accountability", 60, 10)}, nil)
	assert.Equal(t, Aligning, full.OverallResult)
}

func TestFinalize_BaseFallsBackToLargestSection(t *testing.T) {
	sections := []SectionResult{
		section("governance", 0, 2),
		section("targets", 100, 8),
	}

	out := Finalize(sections, nil)
	// 0.6 × 100 + 0.4 × 50
	assert.Equal(t, 80, out.CombinedScore)
	assert.Contains(t, out.Reasoning, "largest section")
}

func TestFinalize_Downgrades(t *testing.T) {
	out := Finalize([]SectionResult{
		section("accountability", 90, 10),
		section("depth_of_plan", 10, 10),
	}, nil)
	assert.Equal(t, 74, out.CombinedScore)
	assert.Equal(t, Aligning, out.OverallResult)
	assert.Contains(t, out.Reasoning, "Downgraded by depth_of_plan")

	out = Finalize([]SectionResult{
		section("accountability", 100, 10),
		section("planning", 20, 10),
		section("implementation", 20, 10),
	}, nil)
	assert.Equal(t, PartiallyAligned, out.OverallResult)
}

func TestFinalize_DowngradeFloorLeavesMisaligned(t *testing.T) {
	out := Finalize([]SectionResult{
		section("accountability", 0, 10),
		section("action", 0, 10),
	}, nil)
	assert.Equal(t, Misaligned, out.OverallResult)
}

func TestFinalize_UpgradePromotesAligning(t *testing.T) {
	out := Finalize([]SectionResult{
		section("accountability", 50, 10),
		section("depth", 80, 10),
		section("action", 80, 10),
	}, nil)
	assert.Equal(t, 58, out.CombinedScore)
	assert.Equal(t, Aligned, out.OverallResult)
	assert.Contains(t, out.Reasoning, "Upgraded by")
}

func TestFinalize_EmptyDepthSectionIgnored(t *testing.T) {
	empty := SectionResult{SectionID: "depth", SectionTitle: "Depth", Expected: 3, Completeness: 0}
	out := Finalize([]SectionResult{section("accountability", 70, 10), empty}, nil)
	assert.NotContains(t, out.Reasoning, "Downgraded")
}

func TestFinalize_NoRedFlagSectionIsReported(t *testing.T) {
	out := Finalize([]SectionResult{section("accountability", 70, 10)}, nil)
	assert.Contains(t, out.Reasoning, "red flag check skipped")
}

func TestFinalize_CustomRoles(t *testing.T) {
	roles := DefaultRoles()
	roles[RoleRedFlag] = []string{"greenwash"}

	sections := []SectionResult{section("accountability", 90, 10), redFlagSection("Q?")}
	sections[1].SectionID, sections[1].SectionTitle = "greenwashing", "Greenwashing"

	out := Finalize(sections, roles)
	assert.True(t, out.RedFlagTriggered)
}

func TestFinalize_NoSections(t *testing.T) {
	out := Finalize(nil, nil)
	assert.Equal(t, Misaligned, out.OverallResult)
	assert.Equal(t, 25, out.CredibilityScore)
}

func TestFinalize_MinimalEndToEnd(t *testing.T) {
	q := &questionnaire.Questionnaire{Sections: []questionnaire.Section{
		{ID: "accountability", Title: "Accountability", Questions: []questionnaire.Question{
			{ID: "a1", Text: "Is there a named owner?", Weight: 1},
			{ID: "a2", Text: "Is progress reported?", Weight: 1},
		}},
		{ID: "red_flags", Title: "Red Flags", Questions: []questionnaire.Question{
			{ID: "r1", Text: "Does the plan avoid offsets?", Weight: 1},
		}},
	}}
	evals := []evaluation.Evaluation{
		{QuestionID: "a1", QuestionText: "Is there a named owner?", SectionID: "accountability", Response: evaluation.Yes, Score: 1, MaxScore: 1, Weight: 1},
		{QuestionID: "a2", QuestionText: "Is progress reported?", SectionID: "accountability", Response: evaluation.Yes, Score: 1, MaxScore: 1, Weight: 1},
		{QuestionID: "r1", QuestionText: "Does the plan avoid offsets?", SectionID: "red_flags", Response: evaluation.No, Score: 0, MaxScore: 1, Weight: 1},
	}

	out := Finalize(Aggregate(q, evals), nil)
	require.True(t, out.RedFlagTriggered)
	assert.Equal(t, Misaligned, out.OverallResult)
	assert.Len(t, out.RedFlagQuestions, 1)
	assert.Equal(t, 2.0, out.TotalScore)
	assert.Equal(t, 3.0, out.MaxPossibleScore)
	assert.Equal(t, 100, out.Completeness)
	assert.GreaterOrEqual(t, out.CredibilityScore, 25)
	assert.LessOrEqual(t, out.CredibilityScore, 35)
}

// Package questionnaire defines the canonical weighted questionnaire and the adapters that
// normalize the accepted external shapes into it.
package questionnaire

// Questionnaire is the canonical, normalized questionnaire.
type Questionnaire struct {
	ID       string    `json:"id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Sections []Section `json:"sections"`
}

// Section is an ordered group of questions.
type Section struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question is a single weighted yes/no question.
// ScoreYes, ScoreNo and ScoreNA override the default reward for each response when set.
type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Weight   float64  `json:"weight"`
	ScoreYes *float64 `json:"score_yes,omitempty"`
	ScoreNo  *float64 `json:"score_no,omitempty"`
	ScoreNA  *float64 `json:"score_na,omitempty"`
}

// QuestionCount returns the total number of questions across all sections.
func (q *Questionnaire) QuestionCount() int {
	if q == nil {
		return 0
	}
	count := 0
	for _, s := range q.Sections {
		count += len(s.Questions)
	}
	return count
}

// Section returns the section with the given ID, or nil.
func (q *Questionnaire) Section(id string) *Section {
	if q == nil {
		return nil
	}
	for i := range q.Sections {
		if q.Sections[i].ID == id {
			return &q.Sections[i]
		}
	}
	return nil
}

// YesScore returns the reward for a "Yes" answer (defaults to the weight).
func (q Question) YesScore() float64 {
	if q.ScoreYes != nil {
		return *q.ScoreYes
	}
	return q.Weight
}

// NoScore returns the reward for a "No" answer (defaults to 0).
func (q Question) NoScore() float64 {
	if q.ScoreNo != nil {
		return *q.ScoreNo
	}
	return 0
}

// InsufficientScore returns the reward for an insufficient-evidence answer.
// Without an explicit score_na the reward is weight × multiplier.
func (q Question) InsufficientScore(multiplier float64) float64 {
	if q.ScoreNA != nil {
		return *q.ScoreNA
	}
	return q.Weight * multiplier
}

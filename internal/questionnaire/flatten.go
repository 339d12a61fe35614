package questionnaire

// FlatQuestion is a question tagged with its section and its global position.
// Index is the canonical order used for batching and progress percentages.
type FlatQuestion struct {
	Index        int      `json:"index"`
	SectionID    string   `json:"section_id"`
	SectionTitle string   `json:"section_title"`
	Question     Question `json:"question"`
}

// Flatten lists every question in section order, then question order within the section.
// The result is stable for the same questionnaire.
func Flatten(q *Questionnaire) []FlatQuestion {
	if q == nil {
		return nil
	}
	flat := make([]FlatQuestion, 0, q.QuestionCount())
	for _, section := range q.Sections {
		for _, question := range section.Questions {
			flat = append(flat, FlatQuestion{
				Index:        len(flat),
				SectionID:    section.ID,
				SectionTitle: section.Title,
				Question:     question,
			})
		}
	}
	return flat
}

// Regroup rebuilds sections from flattened questions, in first-seen section order.
// Sections without questions cannot be recovered from a flat list.
func Regroup(flat []FlatQuestion) []Section {
	var sections []Section
	index := make(map[string]int)
	for _, fq := range flat {
		i, ok := index[fq.SectionID]
		if !ok {
			i = len(sections)
			index[fq.SectionID] = i
			sections = append(sections, Section{ID: fq.SectionID, Title: fq.SectionTitle})
		}
		sections[i].Questions = append(sections[i].Questions, fq.Question)
	}
	return sections
}

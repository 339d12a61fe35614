package questionnaire

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// maxWrapperDepth bounds how many wrapper layers are peeled before giving up.
const maxWrapperDepth = 4

// wrapperKeys are object keys whose value is itself a questionnaire in one of the accepted shapes.
var wrapperKeys = []string{"questionnaire", "data", "assessment", "payload"}

// shapeAdapter converts one accepted external shape into the canonical questionnaire.
type shapeAdapter struct {
	name    string
	matches func(node any) bool
	convert func(node any, depth int) (*Questionnaire, error)
}

// adapters is consulted in order; the first adapter whose matcher accepts the node wins.
var adapters []shapeAdapter

func init() {
	adapters = []shapeAdapter{
		{name: "sections", matches: isSectionsObject, convert: fromSectionsObject},
		{name: "basic_assessment_sections", matches: isKeyedSectionsObject, convert: fromKeyedSectionsObject},
		{name: "wrapper", matches: isWrapperObject, convert: fromWrapperObject},
		{name: "section-list", matches: isSectionList, convert: fromSectionList},
		{name: "array-wrapped", matches: isArrayWrapped, convert: fromArrayWrapped},
	}
}

// Parse decodes a JSON or YAML questionnaire in any accepted shape and normalizes it.
func Parse(data []byte) (*Questionnaire, error) {
	node, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	return normalizeNode(node, 0)
}

// Normalize converts an already-decoded questionnaire value (as produced by encoding/json into
// an any) into the canonical shape. Key order of plain Go maps is not preserved; callers that
// care about keyed-map order should use Parse on the raw bytes.
func Normalize(value any) (*Questionnaire, error) {
	return normalizeNode(fromYAML(value), 0)
}

func normalizeNode(node any, depth int) (*Questionnaire, error) {
	if depth > maxWrapperDepth {
		return nil, &ShapeError{Message: "questionnaire is nested too deeply"}
	}
	for _, adapter := range adapters {
		if !adapter.matches(node) {
			continue
		}
		q, err := adapter.convert(node, depth)
		if err != nil {
			return nil, err
		}
		if depth == 0 {
			if err := finish(q); err != nil {
				return nil, err
			}
		}
		return q, nil
	}
	return nil, &ShapeError{Message: "unrecognized questionnaire shape; expected sections, basic_assessment_sections, a wrapper object or an array"}
}

// --- Matchers ---

func isSectionsObject(node any) bool {
	m, ok := node.(orderedMap)
	return ok && m.has("sections")
}

func isKeyedSectionsObject(node any) bool {
	m, ok := node.(orderedMap)
	return ok && m.has("basic_assessment_sections")
}

func isWrapperObject(node any) bool {
	m, ok := node.(orderedMap)
	return ok && m.has(wrapperKeys...)
}

func isSectionList(node any) bool {
	list, ok := node.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	first, ok := list[0].(orderedMap)
	return ok && first.has("questions", "items")
}

func isArrayWrapped(node any) bool {
	list, ok := node.([]any)
	return ok && len(list) > 0
}

// --- Converters ---

func fromSectionsObject(node any, _ int) (*Questionnaire, error) {
	m := node.(orderedMap)
	raw, _ := m.get("sections")

	q := newQuestionnaire(m)
	sections, err := parseSections(raw)
	if err != nil {
		return nil, err
	}
	q.Sections = sections
	return q, nil
}

func fromKeyedSectionsObject(node any, _ int) (*Questionnaire, error) {
	m := node.(orderedMap)
	raw, _ := m.get("basic_assessment_sections")

	q := newQuestionnaire(m)
	sections, err := parseSections(raw)
	if err != nil {
		return nil, err
	}
	q.Sections = sections
	return q, nil
}

func fromWrapperObject(node any, depth int) (*Questionnaire, error) {
	m := node.(orderedMap)
	inner, _ := m.get(wrapperKeys...)
	q, err := normalizeNode(inner, depth+1)
	if err != nil {
		return nil, err
	}
	outer := newQuestionnaire(m)
	if q.ID == "" {
		q.ID = outer.ID
	}
	if q.Name == "" {
		q.Name = outer.Name
	}
	return q, nil
}

func fromSectionList(node any, _ int) (*Questionnaire, error) {
	sections, err := parseSections(node)
	if err != nil {
		return nil, err
	}
	return &Questionnaire{Sections: sections}, nil
}

func fromArrayWrapped(node any, depth int) (*Questionnaire, error) {
	list := node.([]any)
	return normalizeNode(list[0], depth+1)
}

// --- Sections and questions ---

func newQuestionnaire(m orderedMap) *Questionnaire {
	return &Questionnaire{
		ID:   stringField(m, "id", "questionnaire_id"),
		Name: stringField(m, "name", "title"),
	}
}

// parseSections accepts either a list of section objects or a keyed map of them.
func parseSections(raw any) ([]Section, error) {
	var sections []Section
	switch val := raw.(type) {
	case []any:
		for i, item := range val {
			m, ok := item.(orderedMap)
			if !ok {
				return nil, &ShapeError{Message: fmt.Sprintf("section %d is not an object", i+1)}
			}
			section, err := parseSection(m, "", i)
			if err != nil {
				return nil, err
			}
			sections = append(sections, section)
		}
	case orderedMap:
		for i, entry := range val {
			m, ok := entry.Value.(orderedMap)
			if !ok {
				return nil, &ShapeError{Message: fmt.Sprintf("section %q is not an object", entry.Key)}
			}
			section, err := parseSection(m, entry.Key, i)
			if err != nil {
				return nil, err
			}
			sections = append(sections, section)
		}
	default:
		return nil, &ShapeError{Message: "sections must be a list or a keyed object"}
	}
	return sections, nil
}

func parseSection(m orderedMap, key string, index int) (Section, error) {
	section := Section{
		ID:    stringField(m, "id", "section_id", "key"),
		Title: stringField(m, "title", "name", "section_title"),
	}
	if section.ID == "" {
		section.ID = key
	}
	if section.ID == "" {
		section.ID = fmt.Sprintf("section-%d", index+1)
	}
	if section.Title == "" {
		section.Title = humanize(section.ID)
	}

	raw, ok := m.get("questions", "items")
	if !ok || raw == nil {
		section.Questions = []Question{}
		return section, nil
	}

	switch val := raw.(type) {
	case []any:
		for i, item := range val {
			q, err := parseQuestion(item, "", section.ID, i)
			if err != nil {
				return Section{}, err
			}
			section.Questions = append(section.Questions, q)
		}
	case orderedMap:
		for i, entry := range val {
			q, err := parseQuestion(entry.Value, entry.Key, section.ID, i)
			if err != nil {
				return Section{}, err
			}
			section.Questions = append(section.Questions, q)
		}
	default:
		return Section{}, &ShapeError{Message: fmt.Sprintf("questions of section %q must be a list or a keyed object", section.ID)}
	}
	if section.Questions == nil {
		section.Questions = []Question{}
	}
	return section, nil
}

func parseQuestion(raw any, key, sectionID string, index int) (Question, error) {
	q := Question{Weight: 1}

	switch val := raw.(type) {
	case string:
		q.Text = strings.TrimSpace(val)
	case orderedMap:
		q.ID = stringField(val, "id", "question_id")
		q.Text = strings.TrimSpace(stringField(val, "text", "question", "question_text", "prompt"))

		if w, ok := val.get("weight"); ok && w != nil {
			weight, err := cast.ToFloat64E(w)
			if err != nil {
				return Question{}, &ShapeError{Message: fmt.Sprintf("weight of question %d in section %q is not numeric", index+1, sectionID), Cause: err}
			}
			if weight < 0 {
				return Question{}, &ShapeError{Message: fmt.Sprintf("weight of question %d in section %q is negative", index+1, sectionID)}
			}
			q.Weight = weight
		}

		var err error
		if q.ScoreYes, err = optionalNumber(val, "score_yes", "scoreYes"); err != nil {
			return Question{}, err
		}
		if q.ScoreNo, err = optionalNumber(val, "score_no", "scoreNo"); err != nil {
			return Question{}, err
		}
		if q.ScoreNA, err = optionalNumber(val, "score_na", "scoreNa", "scoreNA"); err != nil {
			return Question{}, err
		}
	default:
		return Question{}, &ShapeError{Message: fmt.Sprintf("question %d in section %q is neither text nor an object", index+1, sectionID)}
	}

	if q.ID == "" {
		q.ID = key
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("%s-q%d", sectionID, index+1)
	}
	return q, nil
}

func optionalNumber(m orderedMap, keys ...string) (*float64, error) {
	raw, ok := m.get(keys...)
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, &ShapeError{Message: fmt.Sprintf("%s is not numeric", keys[0]), Cause: err}
	}
	return &v, nil
}

func stringField(m orderedMap, keys ...string) string {
	raw, ok := m.get(keys...)
	if !ok || raw == nil {
		return ""
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// humanize turns an identifier like "red_flags" into "Red Flags".
func humanize(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// finish enforces the canonical invariants on a fully normalized questionnaire.
func finish(q *Questionnaire) error {
	if len(q.Sections) == 0 {
		return &ShapeError{Message: "questionnaire has no sections"}
	}

	sectionIDs := make(map[string]bool)
	questionIDs := make(map[string]bool)
	for _, s := range q.Sections {
		if sectionIDs[s.ID] {
			return &ShapeError{Message: fmt.Sprintf("duplicate section id %q", s.ID)}
		}
		sectionIDs[s.ID] = true
		for _, question := range s.Questions {
			if questionIDs[question.ID] {
				return &ShapeError{Message: fmt.Sprintf("duplicate question id %q", question.ID)}
			}
			questionIDs[question.ID] = true
		}
	}

	if q.QuestionCount() == 0 {
		return &ShapeError{Message: "questionnaire has no questions"}
	}
	return nil
}

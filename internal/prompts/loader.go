// Package prompts loads the LLM prompt templates embedded in the binary.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
)

// AssessmentFile holds the classifier prompts.
const AssessmentFile = "assessment.json"

const (
	keyClassifySystem   = "classify-system"
	keyClassifyQuestion = "classify-question"
)

// excerptFence delimits the document excerpt inside the question prompt.
const excerptFence = `"""`

//go:embed *.json
var promptFiles embed.FS

var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

var placeholderPattern = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9_]*)\}\}`)

// Classifier is the pair of prompts sent for one yes/no question.
type Classifier struct {
	System   string
	question string
}

// LoadClassifier reads the classifier prompts and checks the question template
// exposes the Question and Excerpt placeholders.
func LoadClassifier() (*Classifier, error) {
	system, err := Get(AssessmentFile, keyClassifySystem)
	if err != nil {
		return nil, err
	}
	question, err := Get(AssessmentFile, keyClassifyQuestion)
	if err != nil {
		return nil, err
	}
	have := Placeholders(question)
	for _, want := range []string{"Question", "Excerpt"} {
		if !slices.Contains(have, want) {
			return nil, fmt.Errorf("prompt %s in %s lacks placeholder %q", keyClassifyQuestion, AssessmentFile, want)
		}
	}
	return &Classifier{System: system, question: question}, nil
}

// Question renders the user prompt. A fence sequence inside the excerpt is
// defused so the excerpt cannot close its own delimiter.
func (c *Classifier) Question(question, excerpt string) (string, error) {
	return render(c.question, map[string]string{
		"Question": strings.TrimSpace(question),
		"Excerpt":  strings.ReplaceAll(excerpt, excerptFence, "'''"),
	})
}

// Get retrieves a prompt by filename and key, e.g. Get("assessment.json", "classify-system").
func Get(filename, key string) (string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return "", err
	}

	prompt, exists := prompts[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// Render looks up a template and fills every {{.Key}} placeholder.
// A placeholder without a value is an error.
func Render(filename, key string, data map[string]string) (string, error) {
	template, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	out, err := render(template, data)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", key, err)
	}
	return out, nil
}

// Format replaces {{.Key}} placeholders with values from data and leaves unknown ones in place.
func Format(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := data[name]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct placeholder names of a template, sorted.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// ClearCache clears the prompt cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]string)
	cacheMu.Unlock()
}

func render(template string, data map[string]string) (string, error) {
	for _, name := range Placeholders(template) {
		if _, ok := data[name]; !ok {
			return "", fmt.Errorf("missing value for placeholder %q", name)
		}
	}
	return Format(template, data), nil
}

func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	prompts, exists := cache[filename]
	cacheMu.RUnlock()
	if exists {
		return prompts, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = prompts
	cacheMu.Unlock()
	return prompts, nil
}

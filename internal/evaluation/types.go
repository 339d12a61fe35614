// Package evaluation answers questionnaire questions against document chunks with a
// pluggable classifier and maps the answers to scores.
package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Response is the normalized answer to a question.
type Response string

const (
	Yes          Response = "Yes"
	No           Response = "No"
	Insufficient Response = "Insufficient"
)

// InsufficientToken is the answer the classifier is instructed to give when the excerpt
// neither confirms nor denies the question.
const InsufficientToken = "Not enough information"

// Strategy selects how chunks are presented to the classifier.
type Strategy string

const (
	// StrategySingle classifies the single most relevant chunk.
	StrategySingle Strategy = "single"
	// StrategyScan classifies chunks in order until one answers Yes.
	StrategyScan Strategy = "scan"
)

// ParseStrategy parses a strategy name; "" selects StrategySingle.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategySingle:
		return StrategySingle, nil
	case StrategyScan:
		return StrategyScan, nil
	default:
		return "", fmt.Errorf("unknown evaluation strategy %q (expected single or scan)", s)
	}
}

// Classifier answers one question against one excerpt with free text.
type Classifier interface {
	Classify(ctx context.Context, question, chunk string) (string, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, question, chunk string) (string, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, question, chunk string) (string, error) {
	return f(ctx, question, chunk)
}

// Evaluation is the immutable outcome of one question.
type Evaluation struct {
	QuestionID   string   `json:"question_id"`
	QuestionText string   `json:"question_text"`
	SectionID    string   `json:"section_id"`
	SectionTitle string   `json:"section_title"`
	Response     Response `json:"response"`
	Score        float64  `json:"score"`
	MaxScore     float64  `json:"max_score"`
	Weight       float64  `json:"weight"`
	Error        string   `json:"error,omitempty"`
}

// IsFallback reports whether the evaluation was produced by the failure path.
func (e Evaluation) IsFallback() bool {
	return e.Error != ""
}

// Options tunes scoring and timeouts.
type Options struct {
	Strategy               Strategy
	InsufficientMultiplier float64
	FallbackMultiplier     float64
	QuestionTimeout        time.Duration
}

// DefaultOptions returns the default evaluator options.
func DefaultOptions() Options {
	return Options{
		Strategy:               StrategySingle,
		InsufficientMultiplier: 0.5,
		FallbackMultiplier:     0.2,
		QuestionTimeout:        3 * time.Minute,
	}
}

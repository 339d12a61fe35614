package evaluation

import (
	"context"

	"github.com/jonathan/credibility-assessor/internal/llm"
	"github.com/jonathan/credibility-assessor/internal/prompts"
)

// LLMClassifier asks an LLM to answer Yes, No or Not enough information.
type LLMClassifier struct {
	client  llm.Client
	tier    llm.ModelTier
	prompts *prompts.Classifier
}

// NewLLMClassifier builds a classifier on top of client using the embedded prompts.
func NewLLMClassifier(client llm.Client) (*LLMClassifier, error) {
	p, err := prompts.LoadClassifier()
	if err != nil {
		return nil, err
	}
	return &LLMClassifier{client: client, tier: llm.ClassifierTier, prompts: p}, nil
}

// Classify sends the question and excerpt and returns the cleaned answer text.
func (c *LLMClassifier) Classify(ctx context.Context, question, chunk string) (string, error) {
	prompt, err := c.prompts.Question(question, chunk)
	if err != nil {
		return "", &ClassificationError{Message: "failed to render prompt", Cause: err}
	}

	out, err := c.client.GenerateWithSystem(ctx, c.prompts.System, prompt, c.tier)
	if err != nil {
		return "", &ClassificationError{Message: "llm call failed", Cause: err}
	}
	return llm.CleanResponse(out), nil
}

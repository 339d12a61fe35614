package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/credibility-assessor/internal/chunking"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"go.uber.org/zap"
)

// Evaluator turns one question plus document chunks into an Evaluation.
type Evaluator struct {
	classifier Classifier
	selector   *chunking.Selector
	opts       Options
	logger     *zap.Logger
}

// NewEvaluator creates an evaluator. Zero option fields fall back to DefaultOptions.
func NewEvaluator(classifier Classifier, selector *chunking.Selector, opts Options, logger *zap.Logger) *Evaluator {
	defaults := DefaultOptions()
	if opts.Strategy == "" {
		opts.Strategy = defaults.Strategy
	}
	if opts.InsufficientMultiplier <= 0 {
		opts.InsufficientMultiplier = defaults.InsufficientMultiplier
	}
	if opts.FallbackMultiplier <= 0 {
		opts.FallbackMultiplier = defaults.FallbackMultiplier
	}
	if opts.QuestionTimeout <= 0 {
		opts.QuestionTimeout = defaults.QuestionTimeout
	}
	if selector == nil {
		selector = chunking.NewSelector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{classifier: classifier, selector: selector, opts: opts, logger: logger}
}

// Options returns the effective options.
func (e *Evaluator) Options() Options {
	return e.opts
}

// WithStrategy returns a copy of the evaluator using another strategy.
func (e *Evaluator) WithStrategy(s Strategy) *Evaluator {
	if s == "" || s == e.opts.Strategy {
		return e
	}
	clone := *e
	clone.opts.Strategy = s
	return &clone
}

// Evaluate classifies one question. Classifier failures and the per-question timeout produce
// a fallback evaluation, never an error. An error is returned only when ctx itself is done,
// in which case the caller should abort the batch.
func (e *Evaluator) Evaluate(ctx context.Context, fq questionnaire.FlatQuestion, chunks []chunking.Chunk) (Evaluation, error) {
	q := fq.Question
	if strings.TrimSpace(q.Text) == "" {
		return e.fallback(fq, "question text is empty"), nil
	}
	if len(chunks) == 0 {
		return e.result(fq, Insufficient), nil
	}

	qctx, cancel := context.WithTimeout(ctx, e.opts.QuestionTimeout)
	defer cancel()

	var (
		response Response
		err      error
	)
	switch e.opts.Strategy {
	case StrategyScan:
		response, err = e.scan(qctx, q.Text, chunks)
	default:
		response, err = e.single(qctx, q.Text, chunks)
	}

	if err != nil {
		if ctx.Err() != nil {
			return Evaluation{}, fmt.Errorf("evaluation of question %s aborted: %w", q.ID, ctx.Err())
		}
		note := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			note = fmt.Sprintf("question timed out after %s", e.opts.QuestionTimeout)
		}
		e.logger.Warn("classifier failed, using fallback score",
			zap.String("question_id", q.ID),
			zap.String("section_id", fq.SectionID),
			zap.Error(err))
		return e.fallback(fq, note), nil
	}
	return e.result(fq, response), nil
}

func (e *Evaluator) single(ctx context.Context, question string, chunks []chunking.Chunk) (Response, error) {
	excerpt := e.selector.SelectBest(chunks, question)
	return e.classify(ctx, question, excerpt)
}

// scan returns Yes on the first chunk that says Yes, otherwise No when any chunk said No.
func (e *Evaluator) scan(ctx context.Context, question string, chunks []chunking.Chunk) (Response, error) {
	sawNo := false
	for _, chunk := range chunks {
		response, err := e.classify(ctx, question, chunk.Text)
		if err != nil {
			return "", err
		}
		switch response {
		case Yes:
			return Yes, nil
		case No:
			sawNo = true
		}
	}
	if sawNo {
		return No, nil
	}
	return Insufficient, nil
}

func (e *Evaluator) classify(ctx context.Context, question, excerpt string) (Response, error) {
	raw, err := e.classifier.Classify(ctx, question, excerpt)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return NormalizeResponse(raw), nil
}

func (e *Evaluator) result(fq questionnaire.FlatQuestion, response Response) Evaluation {
	q := fq.Question
	ev := Evaluation{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		SectionID:    fq.SectionID,
		SectionTitle: fq.SectionTitle,
		Response:     response,
		MaxScore:     q.YesScore(),
		Weight:       q.Weight,
	}
	switch response {
	case Yes:
		ev.Score = q.YesScore()
	case No:
		ev.Score = q.NoScore()
	default:
		ev.Score = q.InsufficientScore(e.opts.InsufficientMultiplier)
	}
	return ev
}

func (e *Evaluator) fallback(fq questionnaire.FlatQuestion, note string) Evaluation {
	ev := e.result(fq, Insufficient)
	ev.Score *= e.opts.FallbackMultiplier
	ev.Error = note
	return ev
}

package evaluation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/credibility-assessor/internal/chunking"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatQuestion(text string, weight float64) questionnaire.FlatQuestion {
	return questionnaire.FlatQuestion{
		Index:        0,
		SectionID:    "accountability",
		SectionTitle: "Accountability",
		Question:     questionnaire.Question{ID: "a1", Text: text, Weight: weight},
	}
}

func answer(s string) Classifier {
	return ClassifierFunc(func(context.Context, string, string) (string, error) {
		return s, nil
	})
}

var docChunks = []chunking.Chunk{
	{Text: "General introduction.", Offset: 0},
	{Text: "The board sets emission targets and reports progress.", Offset: 21},
}

func TestEvaluate_ScoreMapping(t *testing.T) {
	tests := []struct {
		raw      string
		response Response
		score    float64
	}{
		{"Yes", Yes, 2},
		{"No", No, 0},
		{"Not enough information", Insufficient, 1},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			e := NewEvaluator(answer(tt.raw), nil, DefaultOptions(), nil)
			ev, err := e.Evaluate(context.Background(), flatQuestion("Does the board set targets?", 2), docChunks)
			require.NoError(t, err)

			assert.Equal(t, tt.response, ev.Response)
			assert.Equal(t, tt.score, ev.Score)
			assert.Equal(t, 2.0, ev.MaxScore)
			assert.Equal(t, 2.0, ev.Weight)
			assert.Equal(t, "a1", ev.QuestionID)
			assert.Equal(t, "accountability", ev.SectionID)
			assert.False(t, ev.IsFallback())
		})
	}
}

func TestEvaluate_ExplicitScores(t *testing.T) {
	yes, no, na := 5.0, -1.0, 0.5
	fq := flatQuestion("Q?", 1)
	fq.Question.ScoreYes, fq.Question.ScoreNo, fq.Question.ScoreNA = &yes, &no, &na

	for raw, want := range map[string]float64{"Yes": 5, "No": -1, "unknown": 0.5} {
		ev, err := NewEvaluator(answer(raw), nil, DefaultOptions(), nil).Evaluate(context.Background(), fq, docChunks)
		require.NoError(t, err)
		assert.Equal(t, want, ev.Score, raw)
		assert.Equal(t, 5.0, ev.MaxScore)
	}
}

func TestEvaluate_SingleUsesMostRelevantChunk(t *testing.T) {
	var seen string
	c := ClassifierFunc(func(_ context.Context, _ string, chunk string) (string, error) {
		seen = chunk
		return "Yes", nil
	})

	_, err := NewEvaluator(c, nil, DefaultOptions(), nil).Evaluate(context.Background(), flatQuestion("Does the board set targets?", 1), docChunks)
	require.NoError(t, err)
	assert.Equal(t, docChunks[1].Text, seen)
}

func TestEvaluate_ScanStrategy(t *testing.T) {
	chunks := []chunking.Chunk{{Text: "one"}, {Text: "two"}, {Text: "three"}}

	t.Run("first yes wins", func(t *testing.T) {
		var calls int
		c := ClassifierFunc(func(_ context.Context, _ string, chunk string) (string, error) {
			calls++
			if chunk == "two" {
				return "Yes", nil
			}
			return "No", nil
		})
		opts := DefaultOptions()
		opts.Strategy = StrategyScan
		ev, err := NewEvaluator(c, nil, opts, nil).Evaluate(context.Background(), flatQuestion("Q?", 1), chunks)
		require.NoError(t, err)
		assert.Equal(t, Yes, ev.Response)
		assert.Equal(t, 2, calls)
	})

	t.Run("no beats insufficient", func(t *testing.T) {
		c := ClassifierFunc(func(_ context.Context, _ string, chunk string) (string, error) {
			if chunk == "three" {
				return "No", nil
			}
			return "Not enough information", nil
		})
		e := NewEvaluator(c, nil, DefaultOptions(), nil).WithStrategy(StrategyScan)
		ev, err := e.Evaluate(context.Background(), flatQuestion("Q?", 1), chunks)
		require.NoError(t, err)
		assert.Equal(t, No, ev.Response)
	})

	t.Run("all insufficient", func(t *testing.T) {
		e := NewEvaluator(answer("unknown"), nil, DefaultOptions(), nil).WithStrategy(StrategyScan)
		ev, err := e.Evaluate(context.Background(), flatQuestion("Q?", 1), chunks)
		require.NoError(t, err)
		assert.Equal(t, Insufficient, ev.Response)
	})
}

func TestEvaluate_ClassifierErrorFallsBack(t *testing.T) {
	c := ClassifierFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("provider exploded")
	})

	ev, err := NewEvaluator(c, nil, DefaultOptions(), nil).Evaluate(context.Background(), flatQuestion("Q?", 2), docChunks)
	require.NoError(t, err)
	assert.Equal(t, Insufficient, ev.Response)
	assert.InDelta(t, 2*0.5*0.2, ev.Score, 1e-9)
	assert.Greater(t, ev.Score, 0.0)
	assert.Contains(t, ev.Error, "provider exploded")
	assert.True(t, ev.IsFallback())
}

func TestEvaluate_QuestionTimeoutFallsBack(t *testing.T) {
	c := ClassifierFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	opts := DefaultOptions()
	opts.QuestionTimeout = 10 * time.Millisecond

	ev, err := NewEvaluator(c, nil, opts, nil).Evaluate(context.Background(), flatQuestion("Q?", 1), docChunks)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
	assert.Contains(t, ev.Error, "timed out")
}

func TestEvaluate_ParentCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := ClassifierFunc(func(ctx context.Context, _, _ string) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	_, err := NewEvaluator(c, nil, DefaultOptions(), nil).Evaluate(ctx, flatQuestion("Q?", 1), docChunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_EmptyQuestionSkipsClassifier(t *testing.T) {
	var calls atomic.Int32
	c := ClassifierFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "Yes", nil
	})

	ev, err := NewEvaluator(c, nil, DefaultOptions(), nil).Evaluate(context.Background(), flatQuestion("   ", 1), docChunks)
	require.NoError(t, err)
	assert.True(t, ev.IsFallback())
	assert.Equal(t, Insufficient, ev.Response)
	assert.Equal(t, int32(0), calls.Load())
}

func TestEvaluate_NoChunksIsInsufficient(t *testing.T) {
	ev, err := NewEvaluator(answer("Yes"), nil, DefaultOptions(), nil).Evaluate(context.Background(), flatQuestion("Q?", 1), nil)
	require.NoError(t, err)
	assert.Equal(t, Insufficient, ev.Response)
	assert.False(t, ev.IsFallback())
}

func TestNewEvaluator_Defaults(t *testing.T) {
	e := NewEvaluator(answer("Yes"), nil, Options{}, nil)
	assert.Equal(t, DefaultOptions(), e.Options())
}

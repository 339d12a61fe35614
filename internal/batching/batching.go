// Package batching partitions a flattened questionnaire into fixed-size batches and paces
// the evaluations inside a batch.
package batching

import (
	"context"
	"time"

	"github.com/jonathan/credibility-assessor/internal/questionnaire"
)

const (
	// DefaultBatchSize is the number of questions evaluated per invocation.
	DefaultBatchSize = 5
	// DefaultDelay is the pause between consecutive evaluations in a batch.
	DefaultDelay = 600 * time.Millisecond
)

// TotalBatches returns ceil(n / size); a non-positive size uses DefaultBatchSize.
func TotalBatches(n, size int) int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Plan flattens q and returns its questions with the number of batches needed.
func Plan(q *questionnaire.Questionnaire, size int) ([]questionnaire.FlatQuestion, int) {
	items := questionnaire.Flatten(q)
	return items, TotalBatches(len(items), size)
}

// Slice returns batch index of items and whether it is the last batch.
// An index at or past the end yields an empty batch and isLast=true.
func Slice(items []questionnaire.FlatQuestion, index, size int) ([]questionnaire.FlatQuestion, bool) {
	if size <= 0 {
		size = DefaultBatchSize
	}
	total := TotalBatches(len(items), size)
	if index < 0 || index >= total {
		return []questionnaire.FlatQuestion{}, true
	}
	start := index * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], index == total-1
}

// Pacer spaces out calls within a batch.
type Pacer struct {
	Delay time.Duration
}

// Wait blocks for the delay unless ctx is done first.
func (p Pacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Each calls fn for every item in order, waiting between items. It stops at the first
// error returned by fn or by the pacer.
func (p Pacer) Each(ctx context.Context, items []questionnaire.FlatQuestion, fn func(context.Context, questionnaire.FlatQuestion) error) error {
	for i, item := range items {
		if i > 0 {
			if err := p.Wait(ctx); err != nil {
				return err
			}
		}
		if err := fn(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

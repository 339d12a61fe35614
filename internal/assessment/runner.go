package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProgressEvent represents a progress update during an in-process run.
type ProgressEvent struct {
	Step       string `json:"step"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
	Content    any    `json:"content,omitempty"`
}

// ProgressCallback is called after each batch and on completion.
type ProgressCallback func(event ProgressEvent)

const (
	StepBatch    = "batch"
	StepComplete = "complete"

	eventCategory = "assessment"
)

// Runner drives every remaining batch of an assessment inside one process.
type Runner struct {
	svc     *Service
	timeout time.Duration
}

// NewRunner creates a runner bounded by the service's run timeout.
func NewRunner(svc *Service) *Runner {
	return &Runner{svc: svc, timeout: svc.Config().RunTimeout}
}

// emitProgress calls the progress callback if configured
func emitProgress(cb ProgressCallback, step, documentID, message string, content any) {
	if cb != nil {
		cb(ProgressEvent{
			Step:       step,
			Category:   eventCategory,
			Message:    message,
			DocumentID: documentID,
			Content:    content,
		})
	}
}

// Run loops over the remaining batches until the report exists. When the whole-run timeout
// fires the recorded batches stay durable and a later Run resumes from the next batch.
func (r *Runner) Run(ctx context.Context, req BatchRequest, onProgress ProgressCallback) (*Report, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	it := r.svc.Iterate(req)
	var last *BatchResponse
	for {
		resp, err := it.Next(runCtx)
		if errors.Is(err, ErrDone) {
			break
		}
		if err != nil {
			if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return nil, newError(CategoryTimeout, err, "assessment exceeded %s; recorded batches are kept", r.timeout)
			}
			return nil, err
		}
		last = resp
		emitProgress(onProgress, StepBatch, req.DocumentID, resp.String(), resp)
		if resp.Completed {
			break
		}
	}

	if last == nil || last.ReportID == "" {
		return nil, newError(CategoryInternal, nil, "assessment of document %s ended without a report", req.DocumentID)
	}
	report, err := r.svc.Report(ctx, last.ReportID)
	if err != nil {
		return nil, err
	}
	emitProgress(onProgress, StepComplete, req.DocumentID,
		fmt.Sprintf("%s (credibility %d)", report.OverallResult, report.CredibilityScore), report)
	return report, nil
}

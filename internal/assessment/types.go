// Package assessment tracks batched assessment progress per (document, user), drives the batch
// pipeline and synthesizes the final credibility report.
package assessment

import (
	"math"
	"time"

	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/scoring"
)

// Status is the lifecycle state of an assessment.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Document is an uploaded document already reduced to plain text.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	Text      string    `json:"text"`
	Truncated bool      `json:"truncated"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchResult is the append-only record of one processed batch.
type BatchResult struct {
	BatchIndex  int                     `json:"batch_index"`
	Evaluations []evaluation.Evaluation `json:"evaluations"`
	ProcessedAt time.Time               `json:"processed_at"`
}

// Progress is the durable state of one assessment. CurrentBatch is the index of the next
// batch to run, counted in BatchSize slices fixed when the assessment started.
// UpdatedAt lets an external reaper detect abandoned runs.
type Progress struct {
	DocumentID         string        `json:"document_id"`
	UserID             string        `json:"user_id"`
	QuestionnaireID    string        `json:"questionnaire_id"`
	Status             Status        `json:"status"`
	BatchSize          int           `json:"batch_size"`
	CurrentBatch       int           `json:"current_batch"`
	TotalBatches       int           `json:"total_batches"`
	ProcessedQuestions int           `json:"processed_questions"`
	TotalQuestions     int           `json:"total_questions"`
	ProgressPercentage int           `json:"progress_percentage"`
	BatchResults       []BatchResult `json:"batch_results"`
	ReportID           string        `json:"report_id,omitempty"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Evaluations returns every evaluation recorded so far, in batch order.
func (p *Progress) Evaluations() []evaluation.Evaluation {
	if p == nil {
		return nil
	}
	var evals []evaluation.Evaluation
	for _, b := range p.BatchResults {
		evals = append(evals, b.Evaluations...)
	}
	return evals
}

// Batch returns the stored result for index, or nil.
func (p *Progress) Batch(index int) *BatchResult {
	if p == nil {
		return nil
	}
	for i := range p.BatchResults {
		if p.BatchResults[i].BatchIndex == index {
			return &p.BatchResults[i]
		}
	}
	return nil
}

// Report is the immutable outcome of a completed assessment.
type Report struct {
	ID              string                  `json:"id"`
	DocumentID      string                  `json:"document_id"`
	UserID          string                  `json:"user_id"`
	QuestionnaireID string                  `json:"questionnaire_id"`
	Sections        []scoring.SectionResult `json:"sections"`
	scoring.Outcome
	DocumentTruncated bool      `json:"document_truncated"`
	CreatedAt         time.Time `json:"created_at"`
}

// BatchUpdate is what a store applies atomically after a batch has been evaluated.
type BatchUpdate struct {
	DocumentID string
	UserID     string
	BatchIndex int
	Processed  int
	Result     BatchResult
}

// BatchRequest asks for one batch to run. A nil BatchIndex runs the next pending batch.
type BatchRequest struct {
	DocumentID      string              `json:"document_id" validate:"required"`
	UserID          string              `json:"user_id" validate:"required"`
	QuestionnaireID string              `json:"questionnaire_id"`
	BatchIndex      *int                `json:"batch_index,omitempty" validate:"omitempty,min=0"`
	Strategy        evaluation.Strategy `json:"strategy,omitempty" validate:"omitempty,oneof=single scan"`
}

// BatchResponse describes the batch that was run (or replayed) and the resulting progress.
type BatchResponse struct {
	DocumentID         string                  `json:"document_id"`
	BatchIndex         int                     `json:"batch_index"`
	TotalBatches       int                     `json:"total_batches"`
	QuestionsInBatch   int                     `json:"questions_in_batch"`
	TotalQuestions     int                     `json:"total_questions"`
	ProcessedQuestions int                     `json:"processed_questions"`
	ProgressPercentage int                     `json:"progress_percentage"`
	BatchResults       []evaluation.Evaluation `json:"batch_results"`
	Completed          bool                    `json:"completed"`
	ReportID           string                  `json:"report_id,omitempty"`
	FinalizeError      string                  `json:"finalize_error,omitempty"`
	Replayed           bool                    `json:"replayed"`
}

// Percentage returns round(100 × processed/total), capped at 100. Zero total is 0%.
func Percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(processed) / float64(total)))
	if pct > 100 {
		return 100
	}
	return pct
}

// ApplyBatch applies u to p in place when p is processing and its cursor equals u.BatchIndex,
// and returns ErrStaleBatch otherwise. Stores without native compare-and-set call it under
// their own lock.
func ApplyBatch(p *Progress, u BatchUpdate, now time.Time) error {
	if p == nil || p.Status != StatusProcessing || p.CurrentBatch != u.BatchIndex {
		return ErrStaleBatch
	}
	p.ProcessedQuestions += u.Processed
	p.CurrentBatch++
	p.ProgressPercentage = Percentage(p.ProcessedQuestions, p.TotalQuestions)
	p.BatchResults = append(p.BatchResults, u.Result)
	p.UpdatedAt = now
	return nil
}

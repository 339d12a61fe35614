package assessment

import (
	"context"
	"time"

	"github.com/jonathan/credibility-assessor/internal/questionnaire"
)

// Store persists documents, questionnaires, progress and reports.
// Lookups of missing records return nil, nil.
type Store interface {
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)

	SaveQuestionnaire(ctx context.Context, q *questionnaire.Questionnaire) error
	GetQuestionnaire(ctx context.Context, id string) (*questionnaire.Questionnaire, error)

	GetProgress(ctx context.Context, documentID, userID string) (*Progress, error)
	// CreateProgress inserts p unless a record already exists and returns the stored record.
	CreateProgress(ctx context.Context, p *Progress) (*Progress, error)
	// ReopenProgress moves a failed record back to processing and clears its error.
	ReopenProgress(ctx context.Context, documentID, userID string) error
	// RecordBatch applies u atomically. It returns ErrStaleBatch when the record is not
	// processing or its current batch differs from u.BatchIndex.
	RecordBatch(ctx context.Context, u BatchUpdate) (*Progress, error)
	MarkFailed(ctx context.Context, documentID, userID, message string) error
	// CompleteAssessment inserts report and marks its progress completed in one step.
	// When the progress is already completed the existing report is returned instead.
	CompleteAssessment(ctx context.Context, report *Report) (*Report, error)
	GetReport(ctx context.Context, id string) (*Report, error)
	// FailStale marks processing records not updated since before cutoff as failed.
	FailStale(ctx context.Context, cutoff time.Time, message string) (int, error)
}

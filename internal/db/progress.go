package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/credibility-assessor/internal/assessment"
)

// -----------------------------------------------------------------------------
// Assessment Progress
// -----------------------------------------------------------------------------

const progressColumns = `document_id, user_id, questionnaire_id, status, batch_size, current_batch, total_batches,
	processed_questions, total_questions, progress_percentage, batch_results,
	COALESCE(report_id, ''), COALESCE(error_message, ''), created_at, updated_at`

func scanProgress(row pgx.Row) (*assessment.Progress, error) {
	var p assessment.Progress
	var status string
	var resultsJSON []byte
	err := row.Scan(&p.DocumentID, &p.UserID, &p.QuestionnaireID, &status, &p.BatchSize, &p.CurrentBatch, &p.TotalBatches,
		&p.ProcessedQuestions, &p.TotalQuestions, &p.ProgressPercentage, &resultsJSON,
		&p.ReportID, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = assessment.Status(status)
	p.BatchResults = []assessment.BatchResult{}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &p.BatchResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal batch results: %w", err)
		}
	}
	return &p, nil
}

// GetProgress retrieves the progress of one (document, user) assessment
func (db *DB) GetProgress(ctx context.Context, documentID, userID string) (*assessment.Progress, error) {
	p, err := scanProgress(db.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM assessment_progress WHERE document_id = $1 AND user_id = $2`,
		documentID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return p, nil
}

// CreateProgress inserts a progress record unless one exists, then returns the stored record
func (db *DB) CreateProgress(ctx context.Context, p *assessment.Progress) (*assessment.Progress, error) {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO assessment_progress
		   (document_id, user_id, questionnaire_id, status, batch_size, total_batches, total_questions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (document_id, user_id) DO NOTHING`,
		p.DocumentID, p.UserID, p.QuestionnaireID, string(p.Status), p.BatchSize, p.TotalBatches, p.TotalQuestions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create progress: %w", err)
	}
	stored, err := db.GetProgress(ctx, p.DocumentID, p.UserID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("progress for document %s vanished after insert", p.DocumentID)
	}
	return stored, nil
}

// ReopenProgress moves a failed assessment back to processing
func (db *DB) ReopenProgress(ctx context.Context, documentID, userID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE assessment_progress
		 SET status = 'processing', error_message = NULL, updated_at = NOW()
		 WHERE document_id = $1 AND user_id = $2 AND status = 'error'`,
		documentID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to reopen progress: %w", err)
	}
	return nil
}

// RecordBatch appends one batch result and advances the cursor. The update only applies when
// current_batch still equals the batch index, so a duplicate or out-of-order write changes
// nothing and yields assessment.ErrStaleBatch.
func (db *DB) RecordBatch(ctx context.Context, u assessment.BatchUpdate) (*assessment.Progress, error) {
	resultJSON, err := json.Marshal(u.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch result: %w", err)
	}

	p, err := scanProgress(db.pool.QueryRow(ctx,
		`UPDATE assessment_progress
		 SET processed_questions = processed_questions + $4,
		     current_batch = current_batch + 1,
		     progress_percentage = LEAST(100, COALESCE(
		         ROUND(100.0 * (processed_questions + $4) / NULLIF(total_questions, 0)), 0))::int,
		     batch_results = batch_results || jsonb_build_array($5::jsonb),
		     updated_at = NOW()
		 WHERE document_id = $1 AND user_id = $2 AND current_batch = $3 AND status = 'processing'
		 RETURNING `+progressColumns,
		u.DocumentID, u.UserID, u.BatchIndex, u.Processed, resultJSON,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assessment.ErrStaleBatch
		}
		return nil, fmt.Errorf("failed to record batch %d: %w", u.BatchIndex, err)
	}
	return p, nil
}

// MarkFailed moves an unfinished assessment to the error state
func (db *DB) MarkFailed(ctx context.Context, documentID, userID, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE assessment_progress
		 SET status = 'error', error_message = $3, updated_at = NOW()
		 WHERE document_id = $1 AND user_id = $2 AND status <> 'completed'`,
		documentID, userID, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark progress failed: %w", err)
	}
	return nil
}

// FailStale marks processing assessments not updated since cutoff as failed
func (db *DB) FailStale(ctx context.Context, cutoff time.Time, message string) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE assessment_progress
		 SET status = 'error', error_message = $2, updated_at = NOW()
		 WHERE status = 'processing' AND updated_at < $1`,
		cutoff, message,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale progress: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

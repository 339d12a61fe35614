package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/credibility-assessor/internal/assessment"
)

// -----------------------------------------------------------------------------
// Reports
// -----------------------------------------------------------------------------

// CompleteAssessment inserts the report and marks the progress completed in one transaction.
// If the progress is already completed the existing report is returned and nothing is written.
func (db *DB) CompleteAssessment(ctx context.Context, report *assessment.Report) (*assessment.Report, error) {
	content, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var status, existingID string
	err = tx.QueryRow(ctx,
		`SELECT status, COALESCE(report_id, '') FROM assessment_progress
		 WHERE document_id = $1 AND user_id = $2
		 FOR UPDATE`,
		report.DocumentID, report.UserID,
	).Scan(&status, &existingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no progress for document %s", report.DocumentID)
		}
		return nil, fmt.Errorf("failed to lock progress: %w", err)
	}

	if status == string(assessment.StatusCompleted) && existingID != "" {
		existing, err := getReport(ctx, tx, existingID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, tx.Commit(ctx)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reports (id, document_id, user_id, questionnaire_id, overall_result, credibility_score, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.DocumentID, report.UserID, report.QuestionnaireID,
		string(report.OverallResult), report.CredibilityScore, content, report.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE assessment_progress
		 SET status = 'completed', report_id = $3, progress_percentage = 100,
		     error_message = NULL, updated_at = NOW()
		 WHERE document_id = $1 AND user_id = $2`,
		report.DocumentID, report.UserID, report.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}
	return report, nil
}

// GetReport retrieves a report by ID
func (db *DB) GetReport(ctx context.Context, id string) (*assessment.Report, error) {
	return getReport(ctx, db.pool, id)
}

func getReport(ctx context.Context, q querier, id string) (*assessment.Report, error) {
	var content []byte
	err := q.QueryRow(ctx, `SELECT content FROM reports WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report assessment.Report
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", id, err)
	}
	return &report, nil
}

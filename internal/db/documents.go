package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
)

// -----------------------------------------------------------------------------
// Documents
// -----------------------------------------------------------------------------

// SaveDocument inserts or replaces a document
func (db *DB) SaveDocument(ctx context.Context, doc *assessment.Document) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, filename, text, truncated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET user_id = $2, filename = $3, text = $4, truncated = $5`,
		doc.ID, doc.UserID, doc.Filename, doc.Text, doc.Truncated, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument retrieves a document by ID
func (db *DB) GetDocument(ctx context.Context, id string) (*assessment.Document, error) {
	var doc assessment.Document
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, filename, text, truncated, created_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.Text, &doc.Truncated, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// -----------------------------------------------------------------------------
// Questionnaires
// -----------------------------------------------------------------------------

// SaveQuestionnaire stores the canonical form of a questionnaire
func (db *DB) SaveQuestionnaire(ctx context.Context, q *questionnaire.Questionnaire) error {
	content, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal questionnaire: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO questionnaires (id, content)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET content = $2, updated_at = NOW()`,
		q.ID, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save questionnaire %s: %w", q.ID, err)
	}
	return nil
}

// GetQuestionnaire retrieves a canonical questionnaire by ID
func (db *DB) GetQuestionnaire(ctx context.Context, id string) (*questionnaire.Questionnaire, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM questionnaires WHERE id = $1`, id,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get questionnaire: %w", err)
	}

	var q questionnaire.Questionnaire
	if err := json.Unmarshal(content, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questionnaire %s: %w", id, err)
	}
	return &q, nil
}

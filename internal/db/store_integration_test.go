//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"github.com/jonathan/credibility-assessor/internal/scoring"
)

func setupTestDB(t *testing.T) *DB {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to DB: %v", err)
	}
	require.NoError(t, db.Migrate(ctx))
	return db
}

func newAssessment(t *testing.T, db *DB) (docID, userID string) {
	ctx := context.Background()
	docID, userID = uuid.NewString(), uuid.NewString()

	require.NoError(t, db.SaveDocument(ctx, &assessment.Document{
		ID: docID, UserID: userID, Filename: "plan.txt", Text: "text", CreatedAt: time.Now().UTC(),
	}))
	_, err := db.CreateProgress(ctx, &assessment.Progress{
		DocumentID: docID, UserID: userID, QuestionnaireID: "q", Status: assessment.StatusProcessing,
		BatchSize: 5, TotalBatches: 2, TotalQuestions: 7,
	})
	require.NoError(t, err)
	return docID, userID
}

func TestDocumentsAndQuestionnaires_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	missing, err := db.GetDocument(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)

	weight := 3.0
	q := &questionnaire.Questionnaire{ID: uuid.NewString(), Sections: []questionnaire.Section{
		{ID: "s", Title: "S", Questions: []questionnaire.Question{{ID: "a", Text: "A?", Weight: 1, ScoreYes: &weight}}},
	}}
	require.NoError(t, db.SaveQuestionnaire(ctx, q))

	got, err := db.GetQuestionnaire(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestRecordBatch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	docID, userID := newAssessment(t, db)

	update := assessment.BatchUpdate{
		DocumentID: docID, UserID: userID, BatchIndex: 0, Processed: 5,
		Result: assessment.BatchResult{BatchIndex: 0, Evaluations: []evaluation.Evaluation{{QuestionID: "q1", Response: evaluation.Yes}}},
	}
	p, err := db.RecordBatch(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 5, p.BatchSize)
	assert.Equal(t, 1, p.CurrentBatch)
	assert.Equal(t, 5, p.ProcessedQuestions)
	assert.Equal(t, 71, p.ProgressPercentage)
	require.Len(t, p.BatchResults, 1)

	_, err = db.RecordBatch(ctx, update)
	assert.True(t, errors.Is(err, assessment.ErrStaleBatch))

	require.NoError(t, db.MarkFailed(ctx, docID, userID, "boom"))
	update.BatchIndex = 1
	_, err = db.RecordBatch(ctx, update)
	assert.True(t, errors.Is(err, assessment.ErrStaleBatch))

	require.NoError(t, db.ReopenProgress(ctx, docID, userID))
	p, err = db.RecordBatch(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 10, p.ProcessedQuestions)
	assert.Equal(t, 100, p.ProgressPercentage)
}

func TestCompleteAssessment_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	docID, userID := newAssessment(t, db)

	report := &assessment.Report{
		ID: uuid.NewString(), DocumentID: docID, UserID: userID, QuestionnaireID: "q",
		Sections:  []scoring.SectionResult{},
		Outcome:   scoring.Outcome{OverallResult: scoring.Aligning, CredibilityScore: 58, RedFlagQuestions: []string{}},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	stored, err := db.CompleteAssessment(ctx, report)
	require.NoError(t, err)
	assert.Equal(t, report.ID, stored.ID)

	second := *report
	second.ID = uuid.NewString()
	again, err := db.CompleteAssessment(ctx, &second)
	require.NoError(t, err)
	assert.Equal(t, report.ID, again.ID)

	p, err := db.GetProgress(ctx, docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, p.Status)
	assert.Equal(t, report.ID, p.ReportID)

	got, err := db.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, scoring.Aligning, got.OverallResult)
}

func TestFailStale_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	docID, userID := newAssessment(t, db)

	n, err := db.FailStale(ctx, time.Now().Add(time.Minute), "abandoned")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	p, err := db.GetProgress(ctx, docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusError, p.Status)
	assert.Equal(t, "abandoned", p.ErrorMessage)
}

func TestMigrate_Concurrent_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	db := setupTestDB(t)
	defer db.Close()

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- db.Migrate(context.Background()) }()
	}
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-errs)
	}
}

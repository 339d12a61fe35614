// Package store provides an in-memory assessment.Store for the CLI and tests.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
)

type progressKey struct {
	documentID string
	userID     string
}

// Memory keeps every record in maps guarded by one mutex. Values are copied on the way in
// and out so callers never share state with the store.
type Memory struct {
	mu             sync.Mutex
	documents      map[string]*assessment.Document
	questionnaires map[string]*questionnaire.Questionnaire
	progress       map[progressKey]*assessment.Progress
	reports        map[string]*assessment.Report
	now            func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		documents:      make(map[string]*assessment.Document),
		questionnaires: make(map[string]*questionnaire.Questionnaire),
		progress:       make(map[progressKey]*assessment.Progress),
		reports:        make(map[string]*assessment.Report),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

var _ assessment.Store = (*Memory)(nil)

func (m *Memory) SaveDocument(_ context.Context, doc *assessment.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	m.documents[doc.ID] = &d
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (*assessment.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	out := *d
	return &out, nil
}

func (m *Memory) SaveQuestionnaire(_ context.Context, q *questionnaire.Questionnaire) error {
	if q == nil || q.ID == "" {
		return fmt.Errorf("questionnaire id is required")
	}
	c, err := clone(q)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questionnaires[q.ID] = c
	return nil
}

func (m *Memory) GetQuestionnaire(_ context.Context, id string) (*questionnaire.Questionnaire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questionnaires[id]
	if !ok {
		return nil, nil
	}
	return clone(q)
}

func (m *Memory) GetProgress(_ context.Context, documentID, userID string) (*assessment.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{documentID, userID}]
	if !ok {
		return nil, nil
	}
	return clone(p)
}

func (m *Memory) CreateProgress(_ context.Context, p *assessment.Progress) (*assessment.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey{p.DocumentID, p.UserID}
	if existing, ok := m.progress[key]; ok {
		return clone(existing)
	}
	c, err := clone(p)
	if err != nil {
		return nil, err
	}
	if c.BatchResults == nil {
		c.BatchResults = []assessment.BatchResult{}
	}
	m.progress[key] = c
	return clone(c)
}

func (m *Memory) ReopenProgress(_ context.Context, documentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{documentID, userID}]
	if !ok || p.Status != assessment.StatusError {
		return nil
	}
	p.Status = assessment.StatusProcessing
	p.ErrorMessage = ""
	p.UpdatedAt = m.now()
	return nil
}

func (m *Memory) RecordBatch(_ context.Context, u assessment.BatchUpdate) (*assessment.Progress, error) {
	result, err := clone(&u.Result)
	if err != nil {
		return nil, err
	}
	u.Result = *result

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{u.DocumentID, u.UserID}]
	if !ok {
		return nil, assessment.ErrStaleBatch
	}
	if err := assessment.ApplyBatch(p, u, m.now()); err != nil {
		return nil, err
	}
	return clone(p)
}

func (m *Memory) MarkFailed(_ context.Context, documentID, userID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{documentID, userID}]
	if !ok || p.Status == assessment.StatusCompleted {
		return nil
	}
	p.Status = assessment.StatusError
	p.ErrorMessage = message
	p.UpdatedAt = m.now()
	return nil
}

func (m *Memory) CompleteAssessment(_ context.Context, report *assessment.Report) (*assessment.Report, error) {
	c, err := clone(report)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{report.DocumentID, report.UserID}]
	if !ok {
		return nil, fmt.Errorf("no progress for document %s", report.DocumentID)
	}
	if p.Status == assessment.StatusCompleted && p.ReportID != "" {
		if existing, ok := m.reports[p.ReportID]; ok {
			return clone(existing)
		}
	}

	m.reports[c.ID] = c
	p.Status = assessment.StatusCompleted
	p.ReportID = c.ID
	p.ProgressPercentage = 100
	p.ErrorMessage = ""
	p.UpdatedAt = m.now()
	return clone(c)
}

func (m *Memory) GetReport(_ context.Context, id string) (*assessment.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	return clone(r)
}

func (m *Memory) FailStale(_ context.Context, cutoff time.Time, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.progress {
		if p.Status == assessment.StatusProcessing && p.UpdatedAt.Before(cutoff) {
			p.Status = assessment.StatusError
			p.ErrorMessage = message
			p.UpdatedAt = m.now()
			count++
		}
	}
	return count, nil
}

// clone deep-copies v through its JSON form.
func clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	return &out, nil
}

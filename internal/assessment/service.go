package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/credibility-assessor/internal/batching"
	"github.com/jonathan/credibility-assessor/internal/chunking"
	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/extraction"
	"github.com/jonathan/credibility-assessor/internal/lock"
	"github.com/jonathan/credibility-assessor/internal/observability"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"github.com/jonathan/credibility-assessor/internal/schemas"
	"github.com/jonathan/credibility-assessor/internal/scoring"
)

const (
	// DefaultRunTimeout bounds one in-process run of all remaining batches.
	DefaultRunTimeout = 12 * time.Minute
	// DefaultLockTTL is the shortest lease taken on an assessment.
	DefaultLockTTL = 10 * time.Minute
	// lockMargin covers loading inputs, recording the batch and finalizing.
	lockMargin = 2 * time.Minute
)

// BatchLockTTL is the lease that outlasts a worst-case batch: every question running into
// its timeout with the inter-question delay in between. It never drops below DefaultLockTTL.
func BatchLockTTL(batchSize int, questionTimeout, delay time.Duration) time.Duration {
	if batchSize <= 0 {
		batchSize = batching.DefaultBatchSize
	}
	ttl := time.Duration(batchSize)*(questionTimeout+delay) + lockMargin
	if ttl < DefaultLockTTL {
		return DefaultLockTTL
	}
	return ttl
}

// Config tunes the service. Zero values select the defaults.
type Config struct {
	// BatchSize applies to assessments started by this service. Running assessments keep
	// the size stored in their progress record.
	BatchSize     int
	QuestionDelay time.Duration
	RunTimeout    time.Duration
	// LockTTL is raised to BatchLockTTL when shorter.
	LockTTL time.Duration
	Chunker chunking.Chunker
	Roles   scoring.Roles
}

// Dependencies are the collaborators of a Service. Logger and Metrics are optional.
type Dependencies struct {
	Store     Store
	Locker    lock.Locker
	Evaluator *evaluation.Evaluator
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// Service runs assessments one batch per call and finalizes them into reports.
type Service struct {
	store     Store
	locker    lock.Locker
	evaluator *evaluation.Evaluator
	logger    *zap.Logger
	metrics   *observability.Metrics
	cfg       Config
	now       func() time.Time
}

// NewService creates a service. A nil Locker uses an in-process lock.
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batching.DefaultBatchSize
	}
	if cfg.QuestionDelay < 0 {
		cfg.QuestionDelay = 0
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	questionTimeout := evaluation.DefaultOptions().QuestionTimeout
	if deps.Evaluator != nil {
		questionTimeout = deps.Evaluator.Options().QuestionTimeout
	}
	if minTTL := BatchLockTTL(cfg.BatchSize, questionTimeout, cfg.QuestionDelay); cfg.LockTTL < minTTL {
		cfg.LockTTL = minTTL
	}
	if cfg.Chunker.Size <= 0 {
		cfg.Chunker = chunking.NewChunker()
	}
	if cfg.Roles == nil {
		cfg.Roles = scoring.DefaultRoles()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		store:     deps.Store,
		locker:    deps.Locker,
		evaluator: deps.Evaluator,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// AddDocument cleans, validates and stores a document for userID.
func (s *Service) AddDocument(ctx context.Context, userID, filename, rawText string, truncated bool) (*Document, error) {
	text, cut, err := extraction.Prepare(rawText)
	if err != nil {
		return nil, newError(CategoryInput, err, "document rejected")
	}
	doc := &Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filename:  filename,
		Text:      text,
		Truncated: truncated || cut,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, newError(CategoryInternal, err, "failed to save document")
	}
	return doc, nil
}

// AddQuestionnaire normalizes a questionnaire in any accepted shape, validates the canonical
// form and stores it. A questionnaire without an id gets a generated one.
func (s *Service) AddQuestionnaire(ctx context.Context, raw []byte) (*questionnaire.Questionnaire, error) {
	q, err := questionnaire.Parse(raw)
	if err != nil {
		return nil, newError(CategoryInput, err, "questionnaire rejected")
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	canonical, err := questionnaire.MarshalCanonical(q)
	if err != nil {
		return nil, newError(CategoryInternal, err, "failed to encode questionnaire")
	}
	if err := schemas.ValidateQuestionnaire(canonical); err != nil {
		return nil, newError(CategoryInput, err, "questionnaire rejected")
	}

	if err := s.store.SaveQuestionnaire(ctx, q); err != nil {
		return nil, newError(CategoryInternal, err, "failed to save questionnaire")
	}
	return q, nil
}

// Progress returns the progress record, or a not_found error.
func (s *Service) Progress(ctx context.Context, documentID, userID string) (*Progress, error) {
	p, err := s.store.GetProgress(ctx, documentID, userID)
	if err != nil {
		return nil, newError(CategoryInternal, err, "failed to load progress")
	}
	if p == nil {
		return nil, newError(CategoryNotFound, nil, "no assessment for document %s", documentID)
	}
	return p, nil
}

// Report returns a stored report, or a not_found error.
func (s *Service) Report(ctx context.Context, id string) (*Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, newError(CategoryInternal, err, "failed to load report")
	}
	if r == nil {
		return nil, newError(CategoryNotFound, nil, "report %s not found", id)
	}
	return r, nil
}

// RunBatch runs (or replays) one batch of an assessment and finalizes it when the last
// question has been recorded.
func (s *Service) RunBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	start := time.Now()
	resp, err := s.runBatch(ctx, req)
	s.metrics.ObserveBatch(time.Since(start), err)
	if err != nil {
		s.logger.Warn("batch failed",
			zap.String("document_id", req.DocumentID),
			zap.String("user_id", req.UserID),
			zap.String("category", string(CategoryOf(err))),
			zap.Error(err))
	}
	return resp, err
}

func (s *Service) runBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if req.DocumentID == "" || req.UserID == "" {
		return nil, newError(CategoryInput, nil, "document_id and user_id are required")
	}
	if req.BatchIndex != nil && *req.BatchIndex < 0 {
		return nil, newError(CategoryInput, nil, "batch_index must not be negative")
	}
	release, err := s.acquire(ctx, req.DocumentID, req.UserID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, release)

	progress, err := s.store.GetProgress(ctx, req.DocumentID, req.UserID)
	if err != nil {
		return nil, newError(CategoryInternal, err, "failed to load progress")
	}

	qid := req.QuestionnaireID
	if qid == "" && progress != nil {
		qid = progress.QuestionnaireID
	}
	if qid == "" {
		return nil, newError(CategoryInput, nil, "questionnaire_id is required")
	}
	if progress != nil && progress.QuestionnaireID != qid {
		return nil, newError(CategoryConflict, nil, "assessment of document %s already uses questionnaire %s", req.DocumentID, progress.QuestionnaireID)
	}

	q, doc, err := s.loadInputs(ctx, qid, req.DocumentID, req.UserID)
	if err != nil {
		s.fail(ctx, progress, err)
		return nil, err
	}

	if progress == nil {
		items, totalBatches := batching.Plan(q, s.cfg.BatchSize)
		progress, err = s.store.CreateProgress(ctx, &Progress{
			DocumentID:      req.DocumentID,
			UserID:          req.UserID,
			QuestionnaireID: qid,
			Status:          StatusProcessing,
			BatchSize:       s.cfg.BatchSize,
			TotalBatches:    totalBatches,
			TotalQuestions:  len(items),
			BatchResults:    []BatchResult{},
			CreatedAt:       s.now(),
			UpdatedAt:       s.now(),
		})
		if err != nil {
			return nil, newError(CategoryInternal, err, "failed to create progress")
		}
		s.logger.Info("assessment started",
			zap.String("document_id", req.DocumentID),
			zap.String("questionnaire_id", qid),
			zap.Int("total_questions", len(items)),
			zap.Int("total_batches", totalBatches))
	}

	if progress.BatchSize <= 0 {
		// Records written before the batch size was stored.
		progress.BatchSize = s.cfg.BatchSize
	}

	switch progress.Status {
	case StatusCompleted:
		index := progress.TotalBatches - 1
		if req.BatchIndex != nil {
			index = *req.BatchIndex
		}
		return replay(progress, index), nil
	case StatusError:
		if err := s.store.ReopenProgress(ctx, req.DocumentID, req.UserID); err != nil {
			return nil, newError(CategoryInternal, err, "failed to reopen assessment")
		}
		progress.Status = StatusProcessing
		progress.ErrorMessage = ""
	}

	index := progress.CurrentBatch
	if req.BatchIndex != nil {
		switch {
		case *req.BatchIndex < index:
			return replay(progress, *req.BatchIndex), nil
		case *req.BatchIndex > index:
			return nil, newError(CategoryConflict, nil, "batch %d requested but batch %d is next", *req.BatchIndex, index)
		}
	}

	// All questions recorded but the report is missing: finalization failed earlier.
	if progress.ProcessedQuestions >= progress.TotalQuestions {
		resp := replay(progress, progress.TotalBatches-1)
		s.complete(ctx, resp, progress, q, doc)
		return resp, nil
	}
	if index >= progress.TotalBatches {
		return nil, newError(CategoryConflict, nil, "no batch left after %d but only %d of %d questions processed",
			index, progress.ProcessedQuestions, progress.TotalQuestions)
	}

	if s.evaluator == nil {
		err := newError(CategoryConfig, nil, "no classifier configured")
		s.fail(ctx, progress, err)
		return nil, err
	}

	items, _ := batching.Plan(q, progress.BatchSize)
	if len(items) != progress.TotalQuestions {
		return nil, newError(CategoryConflict, nil, "questionnaire %s now has %d questions but the assessment started with %d",
			qid, len(items), progress.TotalQuestions)
	}
	batch, _ := batching.Slice(items, index, progress.BatchSize)
	evals, err := s.evaluate(ctx, batch, doc.Text, req.Strategy)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.RecordBatch(ctx, BatchUpdate{
		DocumentID: req.DocumentID,
		UserID:     req.UserID,
		BatchIndex: index,
		Processed:  len(evals),
		Result: BatchResult{
			BatchIndex:  index,
			Evaluations: evals,
			ProcessedAt: s.now(),
		},
	})
	if errors.Is(err, ErrStaleBatch) {
		return nil, newError(CategoryConflict, err, "batch %d was already recorded", index)
	}
	if err != nil {
		return nil, newError(CategoryBatch, err, "failed to record batch %d", index)
	}

	resp := &BatchResponse{
		DocumentID:         updated.DocumentID,
		BatchIndex:         index,
		TotalBatches:       updated.TotalBatches,
		QuestionsInBatch:   len(batch),
		TotalQuestions:     updated.TotalQuestions,
		ProcessedQuestions: updated.ProcessedQuestions,
		ProgressPercentage: updated.ProgressPercentage,
		BatchResults:       evals,
	}
	s.logger.Info("batch recorded",
		zap.String("document_id", req.DocumentID),
		zap.Int("batch_index", index),
		zap.Int("processed_questions", updated.ProcessedQuestions),
		zap.Int("total_questions", updated.TotalQuestions))

	if updated.ProcessedQuestions >= updated.TotalQuestions {
		s.complete(ctx, resp, updated, q, doc)
	}
	return resp, nil
}

// Finalize synthesizes the report of an assessment whose questions are all recorded.
// It returns the existing report when the assessment is already completed.
func (s *Service) Finalize(ctx context.Context, documentID, userID string) (*Report, error) {
	release, err := s.acquire(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, release)

	progress, err := s.Progress(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if progress.Status == StatusCompleted && progress.ReportID != "" {
		return s.Report(ctx, progress.ReportID)
	}
	if progress.ProcessedQuestions < progress.TotalQuestions {
		return nil, newError(CategoryConflict, nil, "assessment incomplete: %d of %d questions processed",
			progress.ProcessedQuestions, progress.TotalQuestions)
	}

	q, doc, err := s.loadInputs(ctx, progress.QuestionnaireID, documentID, userID)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, progress, q, doc)
}

func (s *Service) acquire(ctx context.Context, documentID, userID string) (lock.Release, error) {
	release, err := s.locker.Acquire(ctx, lock.AssessmentKey(documentID, userID), s.cfg.LockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, newError(CategoryConflict, err, "document %s is already being assessed", documentID)
	}
	if err != nil {
		return nil, newError(CategoryInternal, err, "failed to acquire assessment lock")
	}
	return release, nil
}

func (s *Service) release(ctx context.Context, release lock.Release) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to release assessment lock", zap.Error(err))
	}
}

func (s *Service) loadInputs(ctx context.Context, questionnaireID, documentID, userID string) (*questionnaire.Questionnaire, *Document, error) {
	q, err := s.store.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, nil, newError(CategoryInternal, err, "failed to load questionnaire")
	}
	if q == nil {
		return nil, nil, newError(CategoryNotFound, nil, "questionnaire %s not found", questionnaireID)
	}
	if q.QuestionCount() == 0 {
		return nil, nil, newError(CategoryInput, nil, "questionnaire %s has no questions", questionnaireID)
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, newError(CategoryInternal, err, "failed to load document")
	}
	if doc == nil || (doc.UserID != "" && doc.UserID != userID) {
		return nil, nil, newError(CategoryNotFound, nil, "document %s not found", documentID)
	}
	if err := extraction.ValidateDocumentText(doc.Text); err != nil {
		return nil, nil, newError(CategoryInput, err, "document %s cannot be assessed", documentID)
	}
	return q, doc, nil
}

// fail moves an existing assessment to the error state after an unrecoverable input failure.
func (s *Service) fail(ctx context.Context, progress *Progress, cause error) {
	if progress == nil || progress.Status != StatusProcessing {
		return
	}
	switch CategoryOf(cause) {
	case CategoryInput, CategoryNotFound, CategoryConfig:
	default:
		return
	}
	if err := s.store.MarkFailed(ctx, progress.DocumentID, progress.UserID, cause.Error()); err != nil {
		s.logger.Error("failed to mark assessment failed", zap.String("document_id", progress.DocumentID), zap.Error(err))
	}
}

func (s *Service) evaluate(ctx context.Context, batch []questionnaire.FlatQuestion, text string, strategy evaluation.Strategy) ([]evaluation.Evaluation, error) {
	evaluator := s.evaluator.WithStrategy(strategy)
	chunks := s.cfg.Chunker.Split(text)
	pacer := batching.Pacer{Delay: s.cfg.QuestionDelay}

	evals := make([]evaluation.Evaluation, 0, len(batch))
	err := pacer.Each(ctx, batch, func(ctx context.Context, fq questionnaire.FlatQuestion) error {
		ev, err := evaluator.Evaluate(ctx, fq, chunks)
		if err != nil {
			return err
		}
		s.metrics.ObserveEvaluation(string(ev.Response), ev.IsFallback())
		evals = append(evals, ev)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(CategoryTimeout, err, "batch interrupted after %d of %d questions; progress unchanged", len(evals), len(batch))
		}
		return nil, newError(CategoryBatch, err, "batch evaluation failed")
	}
	return evals, nil
}

// complete finalizes into resp. Errors are reported on resp and never undo the batch.
func (s *Service) complete(ctx context.Context, resp *BatchResponse, progress *Progress, q *questionnaire.Questionnaire, doc *Document) {
	report, err := s.finalize(ctx, progress, q, doc)
	if err != nil {
		resp.FinalizeError = err.Error()
		return
	}
	resp.Completed = true
	resp.ReportID = report.ID
	resp.ProgressPercentage = 100
}

func (s *Service) finalize(ctx context.Context, progress *Progress, q *questionnaire.Questionnaire, doc *Document) (*Report, error) {
	sections := scoring.Aggregate(q, progress.Evaluations())
	outcome := scoring.Finalize(sections, s.cfg.Roles)

	report := &Report{
		ID:                uuid.NewString(),
		DocumentID:        progress.DocumentID,
		UserID:            progress.UserID,
		QuestionnaireID:   progress.QuestionnaireID,
		Sections:          sections,
		Outcome:           outcome,
		DocumentTruncated: doc.Truncated,
		CreatedAt:         s.now(),
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, s.finalizeError(progress, newError(CategoryFinalization, err, "failed to encode report"))
	}
	if err := schemas.ValidateReport(data); err != nil {
		return nil, s.finalizeError(progress, newError(CategoryFinalization, err, "report failed validation"))
	}

	stored, err := s.store.CompleteAssessment(ctx, report)
	if err != nil {
		return nil, s.finalizeError(progress, newError(CategoryFinalization, err, "failed to store report"))
	}

	s.metrics.ObserveReport(string(stored.OverallResult), stored.CredibilityScore)
	s.logger.Info("assessment completed",
		zap.String("document_id", stored.DocumentID),
		zap.String("report_id", stored.ID),
		zap.String("overall_result", string(stored.OverallResult)),
		zap.Int("credibility_score", stored.CredibilityScore))
	return stored, nil
}

func (s *Service) finalizeError(progress *Progress, err *Error) error {
	s.logger.Error("finalization failed",
		zap.String("document_id", progress.DocumentID),
		zap.String("user_id", progress.UserID),
		zap.Error(err))
	return err
}

// replay describes an already recorded batch without doing any work.
func replay(p *Progress, index int) *BatchResponse {
	resp := &BatchResponse{
		DocumentID:         p.DocumentID,
		BatchIndex:         index,
		TotalBatches:       p.TotalBatches,
		TotalQuestions:     p.TotalQuestions,
		ProcessedQuestions: p.ProcessedQuestions,
		ProgressPercentage: p.ProgressPercentage,
		BatchResults:       []evaluation.Evaluation{},
		Completed:          p.Status == StatusCompleted,
		ReportID:           p.ReportID,
		Replayed:           true,
	}
	if b := p.Batch(index); b != nil {
		resp.BatchResults = b.Evaluations
		resp.QuestionsInBatch = len(b.Evaluations)
	}
	return resp
}

func (r *BatchResponse) String() string {
	return fmt.Sprintf("batch %d/%d: %d/%d questions (%d%%)", r.BatchIndex+1, r.TotalBatches, r.ProcessedQuestions, r.TotalQuestions, r.ProgressPercentage)
}

package assessment_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/lock"
	"github.com/jonathan/credibility-assessor/internal/scoring"
	"github.com/jonathan/credibility-assessor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

var documentText = strings.Repeat("The board approved a transition plan with interim 2030 targets and named executive owners. ", 5)

const minimalQuestionnaire = `{
  "id": "minimal",
  "sections": [
    {"id": "accountability", "title": "Accountability", "questions": [
      {"id": "a1", "text": "Is there a named owner?"},
      {"id": "a2", "text": "Are interim targets set?"}
    ]},
    {"id": "red_flags", "title": "Red Flags", "questions": [
      {"id": "r1", "text": "Does the plan avoid unproven offsets?"}
    ]}
  ]
}`

// questionnaireJSON builds one accountability section with n questions.
func questionnaireJSON(id string, n int) string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf(`{"id": "q%d", "text": "Question %d?"}`, i+1, i+1)
	}
	return fmt.Sprintf(`{"id": %q, "sections": [{"id": "accountability", "title": "Accountability", "questions": [%s]}]}`,
		id, strings.Join(qs, ","))
}

type harness struct {
	svc   *assessment.Service
	store assessment.Store
	calls *atomic.Int32
	docID string
}

type option func(*harnessConfig)

type harnessConfig struct {
	store   assessment.Store
	locker  lock.Locker
	cfg     assessment.Config
	timeout time.Duration
}

func withStore(s assessment.Store) option { return func(c *harnessConfig) { c.store = s } }
func withLocker(l lock.Locker) option { return func(c *harnessConfig) { c.locker = l } }
func withConfig(cfg assessment.Config) option { return func(c *harnessConfig) { c.cfg = cfg } }
func withQuestionTimeout(d time.Duration) option { return func(c *harnessConfig) { c.timeout = d } }

func newHarness(t *testing.T, classify func(ctx context.Context, question string) (string, error), opts ...option) *harness {
	t.Helper()
	hc := harnessConfig{store: store.NewMemory()}
	for _, opt := range opts {
		opt(&hc)
	}

	calls := &atomic.Int32{}
	classifier := evaluation.ClassifierFunc(func(ctx context.Context, question, _ string) (string, error) {
		calls.Add(1)
		return classify(ctx, question)
	})
	evaluator := evaluation.NewEvaluator(classifier, nil, evaluation.Options{QuestionTimeout: hc.timeout}, nil)

	svc := assessment.NewService(assessment.Dependencies{
		Store:     hc.store,
		Locker:    hc.locker,
		Evaluator: evaluator,
	}, hc.cfg)

	doc, err := svc.AddDocument(context.Background(), userID, "plan.txt", documentText, false)
	require.NoError(t, err)

	return &harness{svc: svc, store: hc.store, calls: calls, docID: doc.ID}
}

func (h *harness) addQuestionnaire(t *testing.T, raw string) string {
	t.Helper()
	q, err := h.svc.AddQuestionnaire(context.Background(), []byte(raw))
	require.NoError(t, err)
	return q.ID
}

func (h *harness) request(qid string) assessment.BatchRequest {
	return assessment.BatchRequest{DocumentID: h.docID, UserID: userID, QuestionnaireID: qid}
}

func always(answer string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return answer, nil }
}

func intPtr(i int) *int { return &i }

func TestRunBatch_MinimalEndToEnd(t *testing.T) {
	h := newHarness(t, func(_ context.Context, question string) (string, error) {
		if strings.Contains(question, "offsets") {
			return "No.", nil
		}
		return "Yes", nil
	})
	qid := h.addQuestionnaire(t, minimalQuestionnaire)

	resp, err := h.svc.RunBatch(context.Background(), h.request(qid))
	require.NoError(t, err)

	assert.True(t, resp.Completed)
	assert.Equal(t, 0, resp.BatchIndex)
	assert.Equal(t, 1, resp.TotalBatches)
	assert.Equal(t, 3, resp.QuestionsInBatch)
	assert.Equal(t, 3, resp.ProcessedQuestions)
	assert.Equal(t, 100, resp.ProgressPercentage)
	require.NotEmpty(t, resp.ReportID)

	report, err := h.svc.Report(context.Background(), resp.ReportID)
	require.NoError(t, err)
	assert.Equal(t, scoring.Misaligned, report.OverallResult)
	assert.True(t, report.RedFlagTriggered)
	assert.Equal(t, []string{"Does the plan avoid unproven offsets?"}, report.RedFlagQuestions)
	assert.GreaterOrEqual(t, report.CredibilityScore, 25)
	assert.LessOrEqual(t, report.CredibilityScore, 35)
	assert.Equal(t, 100, report.Completeness)
	assert.Equal(t, h.docID, report.DocumentID)
	require.Len(t, report.Sections, 2)
	assert.Equal(t, 100, report.Sections[0].YesPercentage)

	progress, err := h.svc.Progress(context.Background(), h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, progress.Status)
	assert.Equal(t, resp.ReportID, progress.ReportID)
}

func TestRunBatch_AlwaysFailingClassifier(t *testing.T) {
	h := newHarness(t, func(context.Context, string) (string, error) {
		return "", errors.New("model overloaded")
	})
	qid := h.addQuestionnaire(t, questionnaireJSON("five", 5))

	resp, err := h.svc.RunBatch(context.Background(), h.request(qid))
	require.NoError(t, err)

	require.Len(t, resp.BatchResults, 5)
	total := 0.0
	for _, ev := range resp.BatchResults {
		assert.True(t, ev.IsFallback())
		assert.Equal(t, evaluation.Insufficient, ev.Response)
		total += ev.Score
	}
	assert.Greater(t, total, 0.0)
	assert.Less(t, total, 5*0.5)
	assert.Equal(t, resp.TotalQuestions, resp.ProcessedQuestions)
	assert.True(t, resp.Completed)
}

func TestRunBatch_ReplayDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t, always("Yes"))
	qid := h.addQuestionnaire(t, questionnaireJSON("seven", 7))
	ctx := context.Background()

	first, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.Equal(t, 5, first.ProcessedQuestions)
	assert.Equal(t, 71, first.ProgressPercentage)
	assert.False(t, first.Completed)
	assert.Equal(t, int32(5), h.calls.Load())

	req := h.request(qid)
	req.BatchIndex = intPtr(0)
	again, err := h.svc.RunBatch(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 5, again.ProcessedQuestions)
	assert.Equal(t, first.BatchResults, again.BatchResults)
	assert.Equal(t, int32(5), h.calls.Load())

	req.BatchIndex = intPtr(2)
	_, err = h.svc.RunBatch(ctx, req)
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryConflict, assessment.CategoryOf(err))

	last, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.Equal(t, 1, last.BatchIndex)
	assert.Equal(t, 2, last.QuestionsInBatch)
	assert.Equal(t, 7, last.ProcessedQuestions)
	assert.True(t, last.Completed)

	replay, err := h.svc.RunBatch(ctx, h.request(""))
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.True(t, replay.Completed)
	assert.Equal(t, last.ReportID, replay.ReportID)
	assert.Equal(t, int32(7), h.calls.Load())
}

func TestRunBatch_InputErrors(t *testing.T) {
	h := newHarness(t, always("Yes"))
	qid := h.addQuestionnaire(t, questionnaireJSON("three", 3))
	ctx := context.Background()

	tests := []struct {
		name string
		req  assessment.BatchRequest
		want assessment.Category
	}{
		{name: "missing user", req: assessment.BatchRequest{DocumentID: h.docID, QuestionnaireID: qid}, want: assessment.CategoryInput},
		{name: "missing questionnaire id", req: assessment.BatchRequest{DocumentID: h.docID, UserID: userID}, want: assessment.CategoryInput},
		{name: "negative index", req: assessment.BatchRequest{DocumentID: h.docID, UserID: userID, QuestionnaireID: qid, BatchIndex: intPtr(-1)}, want: assessment.CategoryInput},
		{name: "unknown questionnaire", req: assessment.BatchRequest{DocumentID: h.docID, UserID: userID, QuestionnaireID: "nope"}, want: assessment.CategoryNotFound},
		{name: "unknown document", req: assessment.BatchRequest{DocumentID: "nope", UserID: userID, QuestionnaireID: qid}, want: assessment.CategoryNotFound},
		{name: "other user's document", req: assessment.BatchRequest{DocumentID: h.docID, UserID: "intruder", QuestionnaireID: qid}, want: assessment.CategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.RunBatch(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, assessment.CategoryOf(err))
		})
	}
	assert.Zero(t, h.calls.Load())
}

func TestRunBatch_QuestionnaireMismatchIsConflict(t *testing.T) {
	h := newHarness(t, always("Yes"))
	first := h.addQuestionnaire(t, questionnaireJSON("first", 7))
	second := h.addQuestionnaire(t, questionnaireJSON("second", 3))

	_, err := h.svc.RunBatch(context.Background(), h.request(first))
	require.NoError(t, err)

	_, err = h.svc.RunBatch(context.Background(), h.request(second))
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryConflict, assessment.CategoryOf(err))
}

func TestRunBatch_HeldLockIsConflict(t *testing.T) {
	locker := lock.NewLocal()
	h := newHarness(t, always("Yes"), withLocker(locker))
	qid := h.addQuestionnaire(t, questionnaireJSON("three", 3))

	release, err := locker.Acquire(context.Background(), lock.AssessmentKey(h.docID, userID), time.Minute)
	require.NoError(t, err)

	_, err = h.svc.RunBatch(context.Background(), h.request(qid))
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryConflict, assessment.CategoryOf(err))
	assert.True(t, errors.Is(err, lock.ErrLocked))

	require.NoError(t, release(context.Background()))
	_, err = h.svc.RunBatch(context.Background(), h.request(qid))
	assert.NoError(t, err)
}

func TestRunBatch_InvalidDocumentFailsThenRecovers(t *testing.T) {
	h := newHarness(t, always("Yes"))
	qid := h.addQuestionnaire(t, questionnaireJSON("seven", 7))
	ctx := context.Background()

	_, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)

	original, err := h.store.GetDocument(ctx, h.docID)
	require.NoError(t, err)
	broken := *original
	broken.Text = "too short"
	require.NoError(t, h.store.SaveDocument(ctx, &broken))

	_, err = h.svc.RunBatch(ctx, h.request(qid))
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryInput, assessment.CategoryOf(err))

	progress, err := h.svc.Progress(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusError, progress.Status)
	assert.NotEmpty(t, progress.ErrorMessage)

	require.NoError(t, h.store.SaveDocument(ctx, original))
	resp, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.BatchIndex)
	assert.True(t, resp.Completed)
}

// flakyStore fails CompleteAssessment while failing is set.
type flakyStore struct {
	*store.Memory
	failing atomic.Bool
}

func (f *flakyStore) CompleteAssessment(ctx context.Context, r *assessment.Report) (*assessment.Report, error) {
	if f.failing.Load() {
		return nil, errors.New("connection reset")
	}
	return f.Memory.CompleteAssessment(ctx, r)
}

func TestRunBatch_FinalizeFailureKeepsBatch(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory()}
	fs.failing.Store(true)
	h := newHarness(t, always("Yes"), withStore(fs))
	qid := h.addQuestionnaire(t, questionnaireJSON("three", 3))
	ctx := context.Background()

	resp, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.False(t, resp.Completed)
	assert.Contains(t, resp.FinalizeError, "connection reset")
	assert.Equal(t, 3, resp.ProcessedQuestions)

	progress, err := h.svc.Progress(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusProcessing, progress.Status)
	assert.Equal(t, 3, progress.ProcessedQuestions)

	_, err = h.svc.Finalize(ctx, h.docID, userID)
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryFinalization, assessment.CategoryOf(err))

	fs.failing.Store(false)
	report, err := h.svc.Finalize(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, scoring.Aligned, report.OverallResult)

	again, err := h.svc.Finalize(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, again.ID)
	assert.Equal(t, int32(3), h.calls.Load())
}

func TestRunBatch_RetriesFinalizationWhenAllRecorded(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory()}
	fs.failing.Store(true)
	h := newHarness(t, always("Yes"), withStore(fs))
	qid := h.addQuestionnaire(t, questionnaireJSON("three", 3))
	ctx := context.Background()

	_, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)

	fs.failing.Store(false)
	resp, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.NotEmpty(t, resp.ReportID)
	assert.Equal(t, int32(3), h.calls.Load())
}

func TestFinalize_IncompleteIsConflict(t *testing.T) {
	h := newHarness(t, always("Yes"))
	qid := h.addQuestionnaire(t, questionnaireJSON("seven", 7))

	_, err := h.svc.Finalize(context.Background(), h.docID, userID)
	assert.Equal(t, assessment.CategoryNotFound, assessment.CategoryOf(err))

	_, err = h.svc.RunBatch(context.Background(), h.request(qid))
	require.NoError(t, err)

	_, err = h.svc.Finalize(context.Background(), h.docID, userID)
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryConflict, assessment.CategoryOf(err))
}

func TestAddInputs_Rejected(t *testing.T) {
	h := newHarness(t, always("Yes"))

	_, err := h.svc.AddDocument(context.Background(), userID, "x.txt", "short", false)
	assert.Equal(t, assessment.CategoryInput, assessment.CategoryOf(err))

	_, err = h.svc.AddQuestionnaire(context.Background(), []byte(`{"foo": 1}`))
	assert.Equal(t, assessment.CategoryInput, assessment.CategoryOf(err))
}

func TestAddQuestionnaire_GeneratesID(t *testing.T) {
	h := newHarness(t, always("Yes"))
	q, err := h.svc.AddQuestionnaire(context.Background(), []byte(`[{"id": "depth", "questions": ["Is capex aligned?"]}]`))
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, assessment.CategoryInternal, assessment.CategoryOf(errors.New("plain")))
	wrapped := fmt.Errorf("outer: %w", &assessment.Error{Category: assessment.CategoryTimeout, Message: "slow"})
	assert.Equal(t, assessment.CategoryTimeout, assessment.CategoryOf(wrapped))
}

func TestRunBatch_KeepsBatchSizeAcrossConfigChange(t *testing.T) {
	h := newHarness(t, always("Yes"), withConfig(assessment.Config{BatchSize: 2}))
	qid := h.addQuestionnaire(t, questionnaireJSON("four", 4))
	ctx := context.Background()

	first, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.Equal(t, 2, first.ProcessedQuestions)
	assert.Equal(t, 2, first.TotalBatches)

	var asked []string
	resized := assessment.NewService(assessment.Dependencies{
		Store: h.store,
		Evaluator: evaluation.NewEvaluator(evaluation.ClassifierFunc(func(_ context.Context, question, _ string) (string, error) {
			asked = append(asked, question)
			return "Yes", nil
		}), nil, evaluation.Options{}, nil),
	}, assessment.Config{BatchSize: 3})

	second, err := resized.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.Equal(t, 1, second.BatchIndex)
	assert.Equal(t, 2, second.TotalBatches)
	assert.Equal(t, []string{"Question 3?", "Question 4?"}, asked)
	assert.Equal(t, 4, second.ProcessedQuestions)
	assert.True(t, second.Completed)

	progress, err := resized.Progress(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.BatchSize)

	report, err := resized.Report(ctx, second.ReportID)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Completeness)
	require.Len(t, report.Sections, 1)
	assert.Equal(t, 4, report.Sections[0].Total)
}

func TestRunBatch_ExhaustedCursorWithMissingQuestionsIsConflict(t *testing.T) {
	h := newHarness(t, always("Yes"))
	qid := h.addQuestionnaire(t, questionnaireJSON("three", 3))
	ctx := context.Background()

	_, err := h.store.CreateProgress(ctx, &assessment.Progress{
		DocumentID:         h.docID,
		UserID:             userID,
		QuestionnaireID:    qid,
		Status:             assessment.StatusProcessing,
		BatchSize:          5,
		CurrentBatch:       1,
		TotalBatches:       1,
		ProcessedQuestions: 2,
		TotalQuestions:     3,
	})
	require.NoError(t, err)

	_, err = h.svc.RunBatch(ctx, h.request(qid))
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryConflict, assessment.CategoryOf(err))

	progress, err := h.svc.Progress(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusProcessing, progress.Status)
	assert.Empty(t, progress.ReportID)
	assert.Zero(t, h.calls.Load())
}

func TestRunBatch_MissingClassifierFailsAssessment(t *testing.T) {
	h := newHarness(t, always("Yes"))
	qid := h.addQuestionnaire(t, questionnaireJSON("seven", 7))
	ctx := context.Background()

	_, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)

	unconfigured := assessment.NewService(assessment.Dependencies{Store: h.store}, assessment.Config{})
	_, err = unconfigured.RunBatch(ctx, h.request(qid))
	require.Error(t, err)
	assert.Equal(t, assessment.CategoryConfig, assessment.CategoryOf(err))

	progress, err := h.svc.Progress(ctx, h.docID, userID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusError, progress.Status)
	assert.Contains(t, progress.ErrorMessage, "no classifier configured")

	resp, err := h.svc.RunBatch(ctx, h.request(qid))
	require.NoError(t, err)
	assert.True(t, resp.Completed)
}

func TestBatchLockTTL(t *testing.T) {
	assert.Equal(t, 5*(3*time.Minute+600*time.Millisecond)+2*time.Minute, assessment.BatchLockTTL(5, 3*time.Minute, 600*time.Millisecond))
	assert.Equal(t, assessment.DefaultLockTTL, assessment.BatchLockTTL(1, time.Second, 0))
	assert.Equal(t, assessment.BatchLockTTL(5, time.Minute, 0), assessment.BatchLockTTL(0, time.Minute, 0))

	svc := assessment.NewService(assessment.Dependencies{Store: store.NewMemory()}, assessment.Config{LockTTL: time.Minute})
	assert.Equal(t, 17*time.Minute, svc.Config().LockTTL)

	svc = assessment.NewService(assessment.Dependencies{Store: store.NewMemory()}, assessment.Config{LockTTL: time.Hour})
	assert.Equal(t, time.Hour, svc.Config().LockTTL)
}

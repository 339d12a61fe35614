package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/extraction"
	"github.com/jonathan/credibility-assessor/internal/observability"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
)

var assessCmd = &cobra.Command{
	Use:   "assess [flags] DOCUMENT...",
	Short: "Assess one or more documents end-to-end",
	Long: `Registers the questionnaire and each document (.pdf or text), runs every batch in-process
and prints the credibility report. Documents are assessed in parallel up to --parallel.

Progress is durable in PostgreSQL when DATABASE_URL is set; otherwise it is kept in memory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssess,
}

var (
	assessQuestionnaire string
	assessUser          string
	assessOutDir        string
	assessParallel      int
	assessStrategy      string
	assessMemory        bool
)

func init() {
	assessCmd.Flags().StringVarP(&assessQuestionnaire, "questionnaire", "q", "", "Path to questionnaire JSON or YAML file (required)")
	assessCmd.Flags().StringVarP(&assessUser, "user", "u", "local", "User the documents belong to")
	assessCmd.Flags().StringVarP(&assessOutDir, "out", "o", "", "Directory to write <document>.report.json files")
	assessCmd.Flags().IntVarP(&assessParallel, "parallel", "p", 2, "Maximum documents assessed at once")
	assessCmd.Flags().StringVar(&assessStrategy, "strategy", "", "Evaluation strategy: single or scan (defaults to config)")
	assessCmd.Flags().BoolVar(&assessMemory, "memory", false, "Use the in-memory store even if DATABASE_URL is set")

	if err := assessCmd.MarkFlagRequired("questionnaire"); err != nil {
		panic(fmt.Sprintf("failed to mark questionnaire flag as required: %v", err))
	}
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, args []string) error {
	if assessParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}
	strategy, err := strategyFlag(assessStrategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{requireClassifier: true, memoryStore: assessMemory})
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := registerQuestionnaire(ctx, a.svc, assessQuestionnaire)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if cfg.Verbose {
		printer.PrintQuestionnaire(q)
	}

	job := assessJob{
		svc:             a.svc,
		runner:          assessment.NewRunner(a.svc),
		printer:         printer,
		logger:          a.logger,
		userID:          assessUser,
		questionnaireID: q.ID,
		strategy:        strategy,
		outDir:          assessOutDir,
		showBatches:     cfg.Verbose || len(args) == 1,
	}

	var (
		mu       sync.Mutex
		failures []string
	)
	g := new(errgroup.Group)
	g.SetLimit(assessParallel)
	for _, path := range args {
		g.Go(func() error {
			if err := job.run(ctx, path); err != nil {
				a.logger.Error("assessment failed", zap.String("document", path), zap.Error(err))
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d documents failed:\n  %s", len(failures), len(args), strings.Join(failures, "\n  "))
	}
	return nil
}

// assessJob assesses one document file against an already registered questionnaire.
type assessJob struct {
	svc             *assessment.Service
	runner          *assessment.Runner
	printer         *observability.Printer
	logger          *zap.Logger
	userID          string
	questionnaireID string
	strategy        evaluation.Strategy
	outDir          string
	showBatches     bool
}

func (j assessJob) run(ctx context.Context, path string) error {
	extracted, err := extraction.FromFile(path)
	if err != nil {
		return err
	}
	if extracted.Truncated {
		j.logger.Warn("document truncated", zap.String("document", path), zap.Int("max_chars", extraction.MaxTextLength))
	}

	doc, err := j.svc.AddDocument(ctx, j.userID, extracted.Filename, extracted.Text, extracted.Truncated)
	if err != nil {
		return err
	}
	j.logger.Info("assessing document",
		zap.String("document", path),
		zap.String("document_id", doc.ID),
		zap.String("hash", extracted.Hash))

	report, err := j.runner.Run(ctx, assessment.BatchRequest{
		DocumentID:      doc.ID,
		UserID:          j.userID,
		QuestionnaireID: j.questionnaireID,
		Strategy:        j.strategy,
	}, j.onProgress)
	if err != nil {
		return err
	}

	j.printer.PrintReport(report.ID, report.Sections, report.Outcome)
	return j.writeReport(path, report)
}

func (j assessJob) onProgress(event assessment.ProgressEvent) {
	if !j.showBatches || event.Step != assessment.StepBatch {
		return
	}
	if resp, ok := event.Content.(*assessment.BatchResponse); ok {
		j.printer.PrintBatch(resp.BatchIndex, resp.TotalBatches, resp.BatchResults, resp.ProcessedQuestions, resp.TotalQuestions)
	}
}

func (j assessJob) writeReport(path string, report *assessment.Report) error {
	if j.outDir == "" {
		return nil
	}
	if err := os.MkdirAll(j.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".report.json"
	if err := os.WriteFile(filepath.Join(j.outDir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// strategyFlag parses a --strategy value; empty keeps the configured default.
func strategyFlag(value string) (evaluation.Strategy, error) {
	if value == "" {
		return "", nil
	}
	return evaluation.ParseStrategy(value)
}

// registerQuestionnaire reads, normalizes and stores a questionnaire file.
func registerQuestionnaire(ctx context.Context, svc *assessment.Service, path string) (*questionnaire.Questionnaire, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questionnaire file %s: %w", path, err)
	}
	return svc.AddQuestionnaire(ctx, raw)
}

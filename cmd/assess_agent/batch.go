package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/credibility-assessor/internal/assessment"
	"github.com/jonathan/credibility-assessor/internal/extraction"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one batch of an assessment stored in the database",
	Long: `Runs the next (or the given) batch of an assessment and prints the batch response as JSON.
Intended for stateless drivers: call repeatedly until "completed" is true.

A document or questionnaire file may be registered on the first call with --document and
--questionnaire; the response carries the ids to pass on later calls.`,
	RunE: runBatch,
}

var (
	batchDocumentID      string
	batchQuestionnaireID string
	batchDocumentFile    string
	batchQuestionnaire   string
	batchUser            string
	batchIndex           int
	batchStrategy        string
)

func init() {
	batchCmd.Flags().StringVar(&batchDocumentID, "document-id", "", "Id of a stored document")
	batchCmd.Flags().StringVar(&batchQuestionnaireID, "questionnaire-id", "", "Id of a stored questionnaire (defaults to the one the assessment started with)")
	batchCmd.Flags().StringVar(&batchDocumentFile, "document", "", "Register this .pdf or text file as the document")
	batchCmd.Flags().StringVar(&batchQuestionnaire, "questionnaire", "", "Register this questionnaire file")
	batchCmd.Flags().StringVarP(&batchUser, "user", "u", "", "User the document belongs to (required)")
	batchCmd.Flags().IntVar(&batchIndex, "index", -1, "Batch index to run; negative runs the next pending batch")
	batchCmd.Flags().StringVar(&batchStrategy, "strategy", "", "Evaluation strategy: single or scan (defaults to config)")

	if err := batchCmd.MarkFlagRequired("user"); err != nil {
		panic(fmt.Sprintf("failed to mark user flag as required: %v", err))
	}
	batchCmd.MarkFlagsMutuallyExclusive("document-id", "document")
	batchCmd.MarkFlagsMutuallyExclusive("questionnaire-id", "questionnaire")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	if batchDocumentID == "" && batchDocumentFile == "" {
		return fmt.Errorf("either --document-id or --document must be provided")
	}
	strategy, err := strategyFlag(batchStrategy)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{requireDB: true, requireClassifier: true})
	if err != nil {
		return err
	}
	defer a.Close()

	req := assessment.BatchRequest{
		DocumentID:      batchDocumentID,
		UserID:          batchUser,
		QuestionnaireID: batchQuestionnaireID,
		Strategy:        strategy,
	}
	if batchIndex >= 0 {
		req.BatchIndex = &batchIndex
	}

	if batchDocumentFile != "" {
		extracted, err := extraction.FromFile(batchDocumentFile)
		if err != nil {
			return err
		}
		doc, err := a.svc.AddDocument(ctx, batchUser, extracted.Filename, extracted.Text, extracted.Truncated)
		if err != nil {
			return err
		}
		req.DocumentID = doc.ID
	}
	if batchQuestionnaire != "" {
		q, err := registerQuestionnaire(ctx, a.svc, batchQuestionnaire)
		if err != nil {
			return err
		}
		req.QuestionnaireID = q.ID
	}

	resp, err := a.svc.RunBatch(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		*assessment.BatchResponse
		QuestionnaireID string `json:"questionnaire_id,omitempty"`
	}{resp, req.QuestionnaireID}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch response: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

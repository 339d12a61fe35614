package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/credibility-assessor/internal/observability"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"github.com/jonathan/credibility-assessor/internal/schemas"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize a questionnaire into the canonical JSON shape",
	Long: `Loads a JSON or YAML questionnaire in any accepted shape (sections list, keyed
basic_assessment_sections, wrapper object, bare section list or array-wrapped), validates the
canonical result against the embedded schema and writes it as indented JSON.`,
	RunE: runNormalize,
}

var (
	normalizeIn  string
	normalizeOut string
)

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeIn, "in", "i", "", "Path to questionnaire JSON or YAML file (required)")
	normalizeCmd.Flags().StringVarP(&normalizeOut, "out", "o", "", "Path to output canonical JSON (defaults to stdout)")

	if err := normalizeCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, _ []string) error {
	q, err := questionnaire.LoadFile(normalizeIn)
	if err != nil {
		return fmt.Errorf("failed to load questionnaire: %w", err)
	}

	canonical, err := questionnaire.MarshalCanonical(q)
	if err != nil {
		return err
	}
	if err := schemas.ValidateQuestionnaire(canonical); err != nil {
		return fmt.Errorf("normalized questionnaire is invalid: %w", err)
	}

	if normalizeOut == "" {
		_, _ = cmd.OutOrStdout().Write(append(canonical, '\n'))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(normalizeOut), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(normalizeOut, canonical, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	if verbose {
		observability.NewPrinter(cmd.OutOrStdout()).PrintQuestionnaire(q)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", normalizeOut)
	return nil
}

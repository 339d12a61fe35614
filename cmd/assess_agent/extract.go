package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/credibility-assessor/internal/extraction"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract and clean the text of a PDF or text document",
	Long:  "Reads a .pdf or plain-text file, cleans the text, truncates oversized documents and writes the text that would be assessed.",
	RunE:  runExtract,
}

var (
	extractIn  string
	extractOut string
)

func init() {
	extractCmd.Flags().StringVarP(&extractIn, "in", "i", "", "Path to input .pdf or text file (required)")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "Path to output text file (defaults to stdout)")

	if err := extractCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	doc, err := extraction.FromFile(extractIn)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", extractIn, err)
	}

	if extractOut == "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), doc.Text)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(extractOut), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(extractOut, []byte(doc.Text), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Extracted %d characters from %s\n", len([]rune(doc.Text)), doc.Filename)
	if doc.Pages > 0 {
		_, _ = fmt.Fprintf(out, "Pages: %d\n", doc.Pages)
	}
	if doc.Truncated {
		_, _ = fmt.Fprintf(out, "Warning: document was truncated to %d characters\n", extraction.MaxTextLength)
	}
	_, _ = fmt.Fprintf(out, "SHA-256: %s\n", doc.Hash)
	_, _ = fmt.Fprintf(out, "Output: %s\n", extractOut)
	return nil
}

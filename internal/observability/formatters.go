// Package observability provides formatted CLI output and Prometheus metrics.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/credibility-assessor/internal/evaluation"
	"github.com/jonathan/credibility-assessor/internal/questionnaire"
	"github.com/jonathan/credibility-assessor/internal/scoring"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content. The box is written in one call
// so boxes from concurrent assessments do not interleave.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	var sb strings.Builder
	fmt.Fprintf(&sb, "┌%s┐\n", border)
	fmt.Fprintf(&sb, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(&sb, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&sb, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(&sb, "└%s┘\n", border)
	io.WriteString(p.out, sb.String())
}

// PrintQuestionnaire outputs the normalized section layout.
func (p *Printer) PrintQuestionnaire(q *questionnaire.Questionnaire) {
	if q == nil {
		return
	}

	var sb strings.Builder
	if q.Name != "" {
		sb.WriteString(fmt.Sprintf("Name:      %s\n", q.Name))
	}
	sb.WriteString(fmt.Sprintf("Sections:  %d\n", len(q.Sections)))
	sb.WriteString(fmt.Sprintf("Questions: %d\n\n", q.QuestionCount()))
	for _, s := range q.Sections {
		sb.WriteString(fmt.Sprintf("  • %s (%d)\n", s.Title, len(s.Questions)))
	}

	p.printBox("QUESTIONNAIRE", strings.TrimRight(sb.String(), "\n"))
}

// PrintBatch outputs the evaluations of one batch and the running progress.
func (p *Printer) PrintBatch(index, totalBatches int, evals []evaluation.Evaluation, processed, totalQuestions int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Progress: %d/%d questions\n\n", processed, totalQuestions))

	for _, ev := range evals {
		marker := responseMarker(ev.Response)
		sb.WriteString(fmt.Sprintf("%s %s\n", marker, ev.QuestionText))
		if ev.IsFallback() {
			sb.WriteString(fmt.Sprintf("    fallback: %s\n", ev.Error))
		}
	}

	p.printBox(fmt.Sprintf("BATCH %d/%d", index+1, totalBatches), strings.TrimRight(sb.String(), "\n"))
}

// PrintReport outputs the final rating with per-section percentages.
func (p *Printer) PrintReport(reportID string, sections []scoring.SectionResult, outcome scoring.Outcome) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Report:        %s\n", reportID))
	sb.WriteString(fmt.Sprintf("Result:        %s\n", outcome.OverallResult))
	sb.WriteString(fmt.Sprintf("Credibility:   %d/100\n", outcome.CredibilityScore))
	sb.WriteString(fmt.Sprintf("Score:         %.1f / %.1f\n", outcome.TotalScore, outcome.MaxPossibleScore))
	sb.WriteString(fmt.Sprintf("Completeness:  %d%%\n\n", outcome.Completeness))

	for _, s := range sections {
		sb.WriteString(fmt.Sprintf("  %-32s %3d%% yes (%d/%d)\n", truncate(s.SectionTitle, 32), s.YesPercentage, s.YesCount, s.Total))
	}

	if outcome.RedFlagTriggered {
		sb.WriteString("\nRed flags:\n")
		count := min(len(outcome.RedFlagQuestions), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", outcome.RedFlagQuestions[i]))
		}
		if len(outcome.RedFlagQuestions) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(outcome.RedFlagQuestions)-maxItemsToShow))
		}
	}

	p.printBox("CREDIBILITY REPORT", strings.TrimRight(sb.String(), "\n"))
}

func responseMarker(r evaluation.Response) string {
	switch r {
	case evaluation.Yes:
		return "✓"
	case evaluation.No:
		return "✗"
	default:
		return "?"
	}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

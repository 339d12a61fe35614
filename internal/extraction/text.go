// Package extraction turns raw document input into clean plain text ready for assessment.
package extraction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinTextLength is the shortest document, in characters, worth assessing.
	MinTextLength = 100
	// MaxTextLength caps the characters kept from a document; longer text is truncated.
	MaxTextLength = 400_000
	// maxNonPrintableRatio is the share of non-printable characters above which text is
	// treated as undecoded binary.
	maxNonPrintableRatio = 0.10
)

var (
	spaceRun      = regexp.MustCompile(`[ \t\f\v]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	hyphenatedEOL = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
)

// CleanText normalizes extracted text while keeping paragraph structure.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ToValidUTF8(content, "")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, " ", " ")
	content = strings.ReplaceAll(content, "\u0000", "")

	// PDF text often breaks words across lines
	content = hyphenatedEOL.ReplaceAllString(content, "$1$2")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}

	result := strings.Join(lines, "\n")
	result = blankLineRun.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if strings.TrimSpace(line) == "" {
		return ""
	}

	trimmed := strings.TrimLeft(line, " \t")
	if isBulletLine(trimmed) {
		return trimmed
	}
	return spaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
}

func isBulletLine(trimmed string) bool {
	for _, marker := range []string{"- ", "* ", "• ", "· "} {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// ValidateDocumentText rejects text that is too short or looks like undecoded binary.
func ValidateDocumentText(text string) error {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < MinTextLength {
		return &DocumentError{Message: "document text is too short to assess"}
	}

	nonPrintable := 0
	for _, r := range trimmed {
		if r == utf8.RuneError || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			nonPrintable++
		}
	}
	if float64(nonPrintable)/float64(n) > maxNonPrintableRatio {
		return &DocumentError{Message: "document text appears to be binary"}
	}
	return nil
}

// Truncate keeps at most max runes of text. The flag reports whether anything was cut.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:max]), true
}

// Prepare cleans, truncates to MaxTextLength, and validates text.
func Prepare(raw string) (text string, truncated bool, err error) {
	text, truncated = Truncate(CleanText(raw), MaxTextLength)
	if err := ValidateDocumentText(text); err != nil {
		return "", false, err
	}
	return text, truncated, nil
}

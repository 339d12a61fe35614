package llm

import "strings"

// CleanResponse strips the wrapping models add around short answers: markdown code
// fences, surrounding quotes and trailing punctuation.
func CleanResponse(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	text = strings.Trim(text, "\"'`*")
	text = strings.TrimRight(text, ".!")
	return strings.TrimSpace(text)
}

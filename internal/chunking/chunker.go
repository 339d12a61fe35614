// Package chunking splits document text into overlapping windows and picks the window most
// relevant to a question.
package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the maximum chunk length in bytes.
	DefaultSize = 1500
	// DefaultOverlap is the number of bytes shared by consecutive chunks.
	DefaultOverlap = 200
	// DefaultMaxChunks caps how many chunks a single document produces.
	DefaultMaxChunks = 25
	// DefaultMinLength is the trimmed length below which a fragment is discarded.
	DefaultMinLength = 200

	// sentenceWindow is the trailing fraction of a window searched for a sentence end.
	sentenceWindow = 0.30
)

// Chunk is a contiguous substring of the source text.
type Chunk struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

// End returns the byte offset just past the chunk in the source text.
func (c Chunk) End() int {
	return c.Offset + len(c.Text)
}

// Chunker splits text into bounded, overlapping chunks.
// MaxChunks <= 0 means no limit.
type Chunker struct {
	Size      int
	Overlap   int
	MaxChunks int
	MinLength int
}

// NewChunker returns a chunker with the default sizes.
func NewChunker() Chunker {
	return Chunker{
		Size:      DefaultSize,
		Overlap:   DefaultOverlap,
		MaxChunks: DefaultMaxChunks,
		MinLength: DefaultMinLength,
	}
}

// Split cuts text into chunks of at most Size bytes. Windows that are not the document tail
// end at the last sentence terminator in their final 30% when there is one. The next window
// starts Overlap bytes before the previous end, so no text is skipped. The result is
// deterministic for the same text and configuration.
func (c Chunker) Split(text string) []Chunk {
	if c.Size <= 0 || text == "" {
		return nil
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= c.Size {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		if c.MaxChunks > 0 && len(chunks) >= c.MaxChunks {
			break
		}

		end := start + c.Size
		tail := end >= len(text)
		if tail {
			end = len(text)
		} else {
			end = runeStartBefore(text, start, end)
			if cut := sentenceCut(text[start:end]); cut > 0 {
				end = start + cut
			}
		}

		piece := text[start:end]
		if len(strings.TrimSpace(piece)) >= c.MinLength {
			chunks = append(chunks, Chunk{Text: piece, Offset: start})
		}
		if tail {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = runeStartAfter(text, next)
	}

	if len(chunks) == 0 && strings.TrimSpace(text) != "" {
		end := len(text)
		if end > c.Size {
			end = runeStartBefore(text, 0, c.Size)
		}
		chunks = append(chunks, Chunk{Text: text[:end], Offset: 0})
	}
	return chunks
}

// sentenceCut returns the length of window up to and including the last '.', '!' or '?'
// in its final 30%, or 0 when there is none.
func sentenceCut(window string) int {
	from := len(window) - int(float64(len(window))*sentenceWindow)
	if from < 0 || from >= len(window) {
		return 0
	}
	idx := strings.LastIndexAny(window[from:], ".!?")
	if idx < 0 {
		return 0
	}
	return from + idx + 1
}

// runeStartBefore moves end back to a rune boundary, keeping at least one rune after start.
func runeStartBefore(text string, start, end int) int {
	for end > start && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	if end <= start {
		_, size := utf8.DecodeRuneInString(text[start:])
		end = start + size
	}
	return end
}

// runeStartAfter moves pos forward to a rune boundary.
func runeStartAfter(text string, pos int) int {
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}

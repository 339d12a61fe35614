package chunking

import (
	"math"
	"strings"
	"unicode"
)

const (
	// DefaultMaxLength is the maximum number of runes returned by SelectBest.
	DefaultMaxLength = 1800
	// DefaultMaxQuestionWords bounds how many question words join the vocabulary.
	DefaultMaxQuestionWords = 6

	keywordWeight  = 3.0
	maxLengthBonus = 2.0
)

// DefaultKeywords is the domain vocabulary matched against every chunk.
var DefaultKeywords = []string{
	"accountab", "responsib", "target", "goal", "plan", "strategy", "implementation",
	"action", "report", "metric", "timeline", "commitment", "governance", "board",
	"risk", "evidence", "progress", "measure", "policy", "emission", "net zero",
	"transition", "climate", "capex", "scope",
}

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "before": true, "being": true,
	"between": true, "both": true, "could": true, "does": true, "each": true, "from": true,
	"have": true, "having": true, "into": true, "more": true, "most": true, "other": true,
	"over": true, "same": true, "should": true, "some": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "under": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true, "clearly": true, "company": true, "document": true,
	"organisation": true, "organization": true, "specific": true,
}

// Selector picks the chunk most likely to answer a question by keyword density.
type Selector struct {
	Keywords         []string
	MaxQuestionWords int
	MaxLength        int
}

// NewSelector returns a selector with the default vocabulary and limits.
func NewSelector() *Selector {
	return &Selector{
		Keywords:         DefaultKeywords,
		MaxQuestionWords: DefaultMaxQuestionWords,
		MaxLength:        DefaultMaxLength,
	}
}

// SelectBest returns the highest-scoring chunk text, truncated to MaxLength runes.
// Ties go to the earliest chunk. No chunks yields "".
func (s *Selector) SelectBest(chunks []Chunk, question string) string {
	idx, _ := s.BestIndex(chunks, question)
	if idx < 0 {
		return ""
	}
	return truncateRunes(chunks[idx].Text, s.MaxLength)
}

// BestIndex returns the index and score of the winning chunk, or -1 when chunks is empty.
func (s *Selector) BestIndex(chunks []Chunk, question string) (int, float64) {
	if len(chunks) == 0 {
		return -1, 0
	}
	vocab := s.Vocabulary(question)
	best, bestScore := 0, math.Inf(-1)
	for i, chunk := range chunks {
		score := Score(chunk.Text, vocab)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// Vocabulary is the domain keyword list plus up to MaxQuestionWords significant words of
// the question, lower-cased and deduplicated in first-seen order.
func (s *Selector) Vocabulary(question string) []string {
	vocab := make([]string, 0, len(s.Keywords)+s.MaxQuestionWords)
	seen := make(map[string]bool)
	for _, k := range s.Keywords {
		k = strings.ToLower(k)
		if !seen[k] {
			seen[k] = true
			vocab = append(vocab, k)
		}
	}

	added := 0
	for _, word := range significantWords(question) {
		if added >= s.MaxQuestionWords {
			break
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		vocab = append(vocab, word)
		added++
	}
	return vocab
}

// Score is 3 × total case-insensitive term occurrences plus a length bonus of up to 2.
func Score(text string, vocab []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, term := range vocab {
		if term == "" {
			continue
		}
		hits += strings.Count(lower, term)
	}
	return keywordWeight*float64(hits) + math.Min(float64(len(text))/1000, maxLengthBonus)
}

func significantWords(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 3 && !stopwords[f] {
			words = append(words, f)
		}
	}
	return words
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

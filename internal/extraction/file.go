package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extracted is the prepared text of one input file.
type Extracted struct {
	Filename  string `json:"filename"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
	Pages     int    `json:"pages,omitempty"`
	Hash      string `json:"hash"`
}

// FromFile reads a .pdf or plain-text file and prepares its text.
func FromFile(path string) (*Extracted, error) {
	var (
		raw   string
		pages int
		err   error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		raw, pages, err = ReadPDF(path)
	} else {
		raw, err = readText(path)
	}
	if err != nil {
		return nil, err
	}

	text, truncated, err := Prepare(raw)
	if err != nil {
		return nil, err
	}
	return &Extracted{
		Filename:  filepath.Base(path),
		Text:      text,
		Truncated: truncated,
		Pages:     pages,
		Hash:      computeHash(text),
	}, nil
}

func readText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %w", err)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(content), nil
}

// ReadPDF extracts plain text from every page of a PDF. Pages that fail to decode are skipped.
func ReadPDF(path string) (string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get file info: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", 0, &DocumentError{Message: "failed to read PDF", Cause: err}
	}

	var sb strings.Builder
	pageCount := reader.NumPage()
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), pageCount, nil
}

// computeHash computes SHA256 hash of content and returns hex string
func computeHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

package questionnaire

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a JSON or YAML questionnaire from disk and normalizes it.
func LoadFile(path string) (*Questionnaire, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("questionnaire file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read questionnaire file %s: %w", path, err)
	}
	return Parse(data)
}

// MarshalCanonical renders the canonical questionnaire as indented JSON.
func MarshalCanonical(q *Questionnaire) ([]byte, error) {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal questionnaire: %w", err)
	}
	return data, nil
}

// Package schemas holds the JSON Schema documents for the canonical artifacts.
package schemas

import "embed"

//go:embed *.schema.json
var files embed.FS

// Load returns the raw content of a named schema file, e.g. "questionnaire.schema.json".
func Load(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

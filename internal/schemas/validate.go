// Package schemas validates canonical artifacts against the embedded JSON Schemas.
package schemas

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/credibility-assessor/schemas"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// QuestionnaireSchema is the schema for the canonical questionnaire.
	QuestionnaireSchema = "questionnaire.schema.json"
	// ReportSchema is the schema for a final credibility report.
	ReportSchema = "report.schema.json"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	if ve.Schema != "" {
		sb.WriteString(fmt.Sprintf("validation against %s failed:\n", ve.Schema))
	} else {
		sb.WriteString("validation failed:\n")
	}
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// compiled caches embedded schemas by name. Reports are validated on every
// finalization, so each schema is compiled once per process.
var compiled sync.Map

func compile(name string) (*gojsonschema.Schema, error) {
	if cached, ok := compiled.Load(name); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	content, err := schemas.Load(name)
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "embedded schema not found", Cause: err}
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "embedded schema does not compile", Cause: err}
	}
	actual, _ := compiled.LoadOrStore(name, schema)
	return actual.(*gojsonschema.Schema), nil
}

// Validate validates JSON content against one of the embedded schemas.
func Validate(schemaName, jsonContent string) error {
	return validateBytes(schemaName, []byte(jsonContent))
}

// ValidateQuestionnaire validates canonical questionnaire JSON.
func ValidateQuestionnaire(jsonContent []byte) error {
	return validateBytes(QuestionnaireSchema, jsonContent)
}

// ValidateReport validates report JSON.
func ValidateReport(jsonContent []byte) error {
	return validateBytes(ReportSchema, jsonContent)
}

func validateBytes(schemaName string, content []byte) error {
	schema, err := compile(schemaName)
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return &SchemaLoadError{Path: schemaName, Message: "document could not be decoded", Cause: err}
	}
	if ve := fromResult(result); ve != nil {
		ve.Schema = schemaName
		return ve
	}
	return nil
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	if ve := fromResult(result); ve != nil {
		return ve
	}
	return nil
}

// fromResult converts a failed result into a ValidationError ordered by field path.
func fromResult(result *gojsonschema.Result) *ValidationError {
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	sort.SliceStable(ve.Errors, func(i, j int) bool {
		return ve.Errors[i].Field < ve.Errors[j].Field
	})
	return ve
}

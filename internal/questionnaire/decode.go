package questionnaire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cast"
)

// orderedMap is a decoded object that keeps its keys in document order.
// Keyed-map questionnaire shapes derive section and question order from it.
type orderedMap []mapEntry

type mapEntry struct {
	Key   string
	Value any
}

// decodeDocument decodes JSON or YAML into a tree of orderedMap, []any and scalars.
func decodeDocument(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ShapeError{Message: "document is empty"}
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return decodeJSON(trimmed)
	}
	return decodeYAML(trimmed)
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	value, err := decodeJSONValue(dec)
	if err != nil {
		return nil, &ShapeError{Message: "malformed JSON", Cause: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ShapeError{Message: "malformed JSON: unexpected data after document"}
	}
	return value, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := orderedMap{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", keyTok)
			}
			value, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, mapEntry{Key: key, Value: value})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		list := []any{}
		for dec.More() {
			value, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

func decodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseOrderedMap()); err != nil {
		return nil, &ShapeError{Message: "malformed YAML", Cause: err}
	}
	return fromYAML(raw), nil
}

// fromYAML converts goccy/go-yaml's decoded values into the shared tree representation.
func fromYAML(v any) any {
	switch val := v.(type) {
	case yaml.MapSlice:
		obj := make(orderedMap, 0, len(val))
		for _, item := range val {
			obj = append(obj, mapEntry{Key: cast.ToString(item.Key), Value: fromYAML(item.Value)})
		}
		return obj
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(orderedMap, 0, len(val))
		for _, k := range keys {
			obj = append(obj, mapEntry{Key: k, Value: fromYAML(val[k])})
		}
		return obj
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = fromYAML(item)
		}
		return list
	default:
		return val
	}
}

// get returns the value of the first key present (case-insensitive).
func (m orderedMap) get(keys ...string) (any, bool) {
	for _, key := range keys {
		for _, entry := range m {
			if strings.EqualFold(entry.Key, key) {
				return entry.Value, true
			}
		}
	}
	return nil, false
}

func (m orderedMap) has(keys ...string) bool {
	_, ok := m.get(keys...)
	return ok
}

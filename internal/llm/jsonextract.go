package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONArray returns the span from the first '[' to the last ']'.
// The span must decode as a JSON array.
func ExtractJSONArray(text string) (json.RawMessage, error) {
	return extractSpan(text, '[', ']')
}

// ExtractJSONObject returns the span from the first '{' to the last '}'.
// The span must decode as a JSON object.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	return extractSpan(text, '{', '}')
}

// DecodeArray extracts the array span and decodes it into []T.
func DecodeArray[T any](text string) ([]T, error) {
	raw, err := ExtractJSONArray(text)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return out, nil
}

// DecodeObject extracts the object span and decodes it into T.
func DecodeObject[T any](text string) (*T, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return &out, nil
}

// The span is greedy, so prose containing brackets on both sides of the
// payload ends up inside it and fails to decode.
func extractSpan(text string, open, close byte) (json.RawMessage, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end < start {
		return nil, ErrNoJSONFound
	}

	span := []byte(text[start : end+1])
	if !json.Valid(span) {
		var probe any
		err := json.Unmarshal(span, &probe)
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return json.RawMessage(span), nil
}

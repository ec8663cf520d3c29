package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply contains no {...} span.
var ErrNoJSON = errors.New("no JSON object found in LLM response")

var jsonSpan = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the span from the first '{' to the last '}' of text,
// trimmed, after checking that it is valid JSON. Surrounding prose and
// markdown code fences are discarded.
func ExtractJSON(text string) (string, error) {
	span := FindJSONSpan(text)
	if span == "" {
		return "", ErrNoJSON
	}
	if !json.Valid([]byte(span)) {
		var v any
		err := json.Unmarshal([]byte(span), &v)
		return span, fmt.Errorf("invalid JSON in LLM response: %w", err)
	}
	return span, nil
}

// FindJSONSpan returns the greedy {...} span of text without validating it.
func FindJSONSpan(text string) string {
	return strings.TrimSpace(jsonSpan.FindString(text))
}

// ParseJSONResponse parses the JSON object embedded in an LLM reply.
func ParseJSONResponse(text string) (map[string]any, error) {
	span, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return nil, fmt.Errorf("LLM response is not a JSON object: %w", err)
	}
	return result, nil
}

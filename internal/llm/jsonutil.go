package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// jsonBlockPattern matches a JSON object inside a markdown code fence.
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// jsonObjectPattern matches any JSON object (greedy fallback).
	jsonObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// jsonArrayBlockPattern matches a JSON array inside a markdown code fence.
	jsonArrayBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	// jsonArrayPattern matches any JSON array (greedy fallback).
	jsonArrayPattern = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a JSON object out of a model response.
func ExtractJSON(content string) string {
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return cleanJSON(m[1])
	}
	if m := jsonObjectPattern.FindString(content); m != "" {
		return cleanJSON(m)
	}
	return ""
}

// ExtractJSONArray pulls a JSON array out of a model response.
func ExtractJSONArray(content string) string {
	if m := jsonArrayBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return cleanJSON(m[1])
	}
	if m := jsonArrayPattern.FindString(content); m != "" {
		return cleanJSON(m)
	}
	return ""
}

// DecodeObject extracts a JSON object from content and unmarshals it into v.
func DecodeObject(content string, v any) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse JSON object: %w", err)
	}
	return nil
}

// DecodeList decodes a JSON list from content into v.
//
// Models asked for a JSON object often wrap the list in one ({"tracks": [...]}),
// so the array is searched for inside the object when key is set.
func DecodeList(content, key string, v any) error {
	if key != "" {
		var wrapper map[string]json.RawMessage
		if err := DecodeObject(content, &wrapper); err == nil {
			if raw, ok := wrapper[key]; ok {
				if err := json.Unmarshal(raw, v); err != nil {
					return fmt.Errorf("failed to parse %q list: %w", key, err)
				}
				return nil
			}
		}
	}

	raw := ExtractJSONArray(content)
	if raw == "" {
		return fmt.Errorf("no JSON array in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse JSON array: %w", err)
	}
	return nil
}

// cleanJSON strips // comments outside strings and trailing commas.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string values.
//
//	"url": "http://example.com" // comment  → "url": "http://example.com"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

// Package reply parses persona replies into structured signals.
//
// Personas are asked to answer with a JSON object such as
//
//	{"message": "...", "unlocked": true, "status": "confirmed",
//	 "confirmed_fields": ["sqft"], "points_awarded": 5}
//
// but models wrap it in code fences, surround it with prose or skip it
// entirely. Extract tolerates all of these and reports a missing object as
// a normal negative result.
package reply

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Recognized keys of a structured reply.
const (
	KeyMessage         = "message"
	KeyUnlocked        = "unlocked"
	KeyStatus          = "status"
	KeyConfirmedFields = "confirmed_fields"
	KeyPointsAwarded   = "points_awarded"
)

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\n")
	fenceClose = regexp.MustCompile("\n```\\s*$")
	lazyObject = regexp.MustCompile(`(?s)\{.*?\}`)
)

// Reply is a parsed JSON object. Lookups distinguish an absent key from a
// present key holding a zero value.
type Reply struct {
	fields map[string]json.RawMessage
}

// Extract returns the first JSON object found in text.
//
// Attempts, first success wins: the whole text; the text with a leading and
// trailing code fence removed; every minimal {...} substring in order of
// appearance; every balanced {...} substring in order of appearance.
func Extract(text string) (Reply, bool) {
	if r, ok := parseObject(text); ok {
		return r, true
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		unfenced := fenceOpen.ReplaceAllString(trimmed, "")
		unfenced = fenceClose.ReplaceAllString(unfenced, "")
		if r, ok := parseObject(unfenced); ok {
			return r, true
		}
	}

	for _, cand := range lazyObject.FindAllString(text, -1) {
		if r, ok := parseObject(cand); ok {
			return r, true
		}
	}

	for _, cand := range balancedObjects(text) {
		if r, ok := parseObject(cand); ok {
			return r, true
		}
	}

	return Reply{}, false
}

func parseObject(s string) (Reply, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil || fields == nil {
		return Reply{}, false
	}
	return Reply{fields: fields}, true
}

// balancedObjects returns every substring starting at a '{' and ending at
// its matching '}', skipping braces inside JSON strings.
func balancedObjects(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			out = append(out, s[start:end+1])
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Has returns true if the key is present, whatever its value.
func (r Reply) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Keys returns the object's keys in sorted order.
func (r Reply) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// True returns true only when key holds the JSON literal true.
// Truthy values such as 1 or "true" do not count.
func (r Reply) True(key string) bool {
	raw, ok := r.fields[key]
	if !ok {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

// String returns the value of key when it is a JSON string.
func (r Reply) String(key string) (string, bool) {
	raw, ok := r.fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Message returns the "message" value when it is a string.
func (r Reply) Message() (string, bool) {
	return r.String(KeyMessage)
}

// Unlocked returns true when "unlocked" is exactly true.
func (r Reply) Unlocked() bool {
	return r.True(KeyUnlocked)
}

// Status returns the lowercased "status" value. Non-string values are
// rendered as their JSON text; null and absent yield "".
func (r Reply) Status() string {
	raw, ok := r.fields[KeyStatus]
	if !ok {
		return ""
	}
	if s, ok := r.String(KeyStatus); ok {
		return strings.ToLower(s)
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return strings.ToLower(text)
}

// ConfirmedFields returns the non-empty string entries of
// "confirmed_fields". ok is false when the key is absent or not an array.
func (r Reply) ConfirmedFields() ([]string, bool) {
	raw, ok := r.fields[KeyConfirmedFields]
	if !ok {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, true
}

// PointsAwarded returns "points_awarded" as an integer. Numbers are
// truncated toward zero, numeric strings are parsed and booleans count as
// 0 or 1. ok is false when the key is absent or the value is not numeric.
func (r Reply) PointsAwarded() (int, bool) {
	raw, ok := r.fields[KeyPointsAwarded]
	if !ok {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

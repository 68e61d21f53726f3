package steps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// lookup evaluates a dot-notation JSONPath like $.message.Success.wasm[0]
// against a decoded document. ok is false when the path does not resolve.
func lookup(doc any, path string) (v any, ok bool, err error) {
	if !strings.HasPrefix(path, "$") {
		return nil, false, fmt.Errorf("JSONPath must start with $: %q", path)
	}
	rest := strings.TrimPrefix(path[1:], ".")
	current := doc

	for _, seg := range splitPath(rest) {
		if seg == "" {
			continue
		}
		field, index, hasIndex := strings.Cut(seg, "[")
		if field != "" {
			m, isMap := current.(map[string]any)
			if !isMap {
				return nil, false, nil
			}
			if current, ok = m[field]; !ok {
				return nil, false, nil
			}
		}
		if !hasIndex {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSuffix(index, "]"))
		if err != nil {
			return nil, false, fmt.Errorf("invalid array index in %q: %w", seg, err)
		}
		arr, isArr := current.([]any)
		if !isArr || i < 0 || i >= len(arr) {
			return nil, false, nil
		}
		current = arr[i]
	}
	return current, true, nil
}

// splitPath splits "a.b[0].c" on dots outside brackets.
func splitPath(path string) []string {
	var segments []string
	var current strings.Builder
	depth := 0
	for _, ch := range path {
		switch {
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == '.' && depth == 0:
			segments = append(segments, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// extract decodes body and evaluates path against it.
func extract(body []byte, path string) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("response body is not valid JSON: %w", err)
	}
	v, ok, err := lookup(doc, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("JSONPath %q: no match found in %s", path, body)
	}
	return v, nil
}

// matchesText reports whether a decoded JSON value equals the text written in
// a step. Numbers compare numerically, strings verbatim, and objects or
// arrays by their compact JSON encoding.
func matchesText(actual any, expected string) bool {
	switch a := actual.(type) {
	case nil:
		return expected == "null"
	case string:
		return a == expected
	case bool:
		b, err := strconv.ParseBool(expected)
		return err == nil && a == b
	case float64:
		f, err := strconv.ParseFloat(expected, 64)
		return err == nil && a == f
	default:
		got, err := json.Marshal(a)
		if err != nil {
			return false
		}
		var want any
		if err := json.Unmarshal([]byte(expected), &want); err != nil {
			return false
		}
		norm, err := json.Marshal(want)
		return err == nil && string(got) == string(norm)
	}
}

// toInt coerces a JSON number or numeric string to an integer.
func toInt(raw json.RawMessage) (int64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s is not an integer", raw)
	}
}

package mapping

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SplitBackslash splits "A \ B" into ["A", "B"], trimming parts and dropping empty ones.
func SplitBackslash(_ context.Context, value string, _ Row) (any, error) {
	parts := strings.Split(value, `\`)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Bool maps "1" to true and anything else to false.
func Bool(_ context.Context, value string, _ Row) (any, error) {
	return strings.TrimSpace(value) == "1", nil
}

// Trim removes surrounding whitespace.
func Trim(_ context.Context, value string, _ Row) (any, error) {
	return strings.TrimSpace(value), nil
}

// Int parses an integer; an empty value becomes 0.
func Int(_ context.Context, value string, _ Row) (any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("parse int %q: %w", value, err)
	}
	return n, nil
}

var namedTransforms = map[string]TransformFunc{
	"split_backslash": SplitBackslash,
	"bool":            Bool,
	"trim":            Trim,
	"int":             Int,
}

// LookupTransform returns the transform registered under name.
func LookupTransform(name string) (TransformFunc, bool) {
	fn, ok := namedTransforms[name]
	return fn, ok
}

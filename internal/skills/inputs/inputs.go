// Package inputs provides fail-fast accessors for the untyped input records
// skills receive. The harness never validates input shape; each skill uses
// these to reject a missing or mistyped required key immediately.
package inputs

import (
	"fmt"
	"time"
)

// Float reads a required numeric key. JSON decoding yields float64; native
// callers may pass int.
func Float(input map[string]interface{}, key string) (float64, error) {
	v, ok := input[key]
	if !ok {
		return 0, fmt.Errorf("missing required input %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("input %q: expected number, got %T", key, v)
	}
}

// Int reads a required integer key.
func Int(input map[string]interface{}, key string) (int, error) {
	f, err := Float(input, key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("input %q: expected integer, got %g", key, f)
	}
	return int(f), nil
}

// String reads a required string key.
func String(input map[string]interface{}, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("missing required input %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input %q: expected string, got %T", key, v)
	}
	return s, nil
}

// Bool reads a required boolean key.
func Bool(input map[string]interface{}, key string) (bool, error) {
	v, ok := input[key]
	if !ok {
		return false, fmt.Errorf("missing required input %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("input %q: expected bool, got %T", key, v)
	}
	return b, nil
}

// Time reads a required RFC 3339 timestamp key.
func Time(input map[string]interface{}, key string) (time.Time, error) {
	s, err := String(input, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("input %q: %w", key, err)
	}
	return ts, nil
}

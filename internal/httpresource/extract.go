package httpresource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPathNotFound is returned by Fetch when an extract path does not match
// the decoded response.
var ErrPathNotFound = errors.New("extract path not found")

// WithExtract narrows every decoded JSON response to the value at path,
// written in dot notation. Object keys and array indexes may be mixed:
// "data.users.0.name" selects the first user's name from
// {"data": {"users": [{"name": "Alice"}]}}.
func WithExtract(path string) Option {
	return func(r *Resource) error {
		path = strings.TrimSpace(path)
		if path == "" {
			return errors.New("extract path cannot be empty")
		}
		parts := strings.Split(path, ".")
		for _, part := range parts {
			if part == "" {
				return fmt.Errorf("invalid extract path %q", path)
			}
		}
		r.extract = parts
		return nil
	}
}

// extractPath walks decoded JSON using dot notation parts.
func extractPath(data any, parts []string) (any, error) {
	current := data

	for i, part := range parts {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, strings.Join(parts[:i+1], "."))
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, strings.Join(parts[:i+1], "."))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, strings.Join(parts[:i+1], "."))
		}
	}

	return current, nil
}

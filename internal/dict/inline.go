package dict

import (
	"fmt"
	"log/slog"
	"strings"
)

// openInline parses "{key=value, key2=value2}". An element may be wrapped
// in its own braces to protect commas or leading spaces in the value:
// "{ {key = value, with comma} }".
func openInline(name string, flags Flags, _ *slog.Logger) (Dict, error) {
	body := strings.TrimSpace(name)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return nil, fmt.Errorf("%w: inline table must be enclosed in {}", ErrBadSpec)
	}
	body = body[1 : len(body)-1]

	t := newTable(flags)
	for _, element := range splitInline(body) {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}
		if strings.HasPrefix(element, "{") && strings.HasSuffix(element, "}") {
			element = strings.TrimSpace(element[1 : len(element)-1])
		}
		key, value, ok := strings.Cut(element, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: inline element %q is not key=value", ErrBadSpec, element)
		}
		if !t.put(key, strings.TrimSpace(value)) {
			return nil, fmt.Errorf("%w: inline key %q is duplicated", ErrBadSpec, key)
		}
	}
	if len(t.values) == 0 {
		return nil, fmt.Errorf("%w: inline table is empty", ErrBadSpec)
	}
	return t, nil
}

func splitInline(body string) []string {
	var (
		parts []string
		start int
		depth int
	)
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

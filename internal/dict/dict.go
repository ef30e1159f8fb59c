package dict

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Dict is an open lookup backend.
type Dict interface {
	// Lookup returns the value for key. A missing key is reported with
	// ok=false and a nil error; err is reserved for backend failures.
	Lookup(key string) (value string, ok bool, err error)
	// Flags returns the type flag of the backend together with the
	// request flags it honours.
	Flags() Flags
	Close() error
}

var (
	// ErrUnknownType reports a spec whose type has no registered opener.
	ErrUnknownType = errors.New("unknown dictionary type")
	// ErrBadSpec reports a spec that is not of the form type:name.
	ErrBadSpec = errors.New("malformed dictionary spec")
	// ErrCapability reports a backend that cannot provide the requested flags.
	ErrCapability = errors.New("dictionary lacks required capability")
	// ErrLookup wraps backend failures during Lookup.
	ErrLookup = errors.New("dictionary lookup failed")
)

// ParseSpec splits "type:name" into its parts.
func ParseSpec(spec string) (typ, name string, err error) {
	typ, name, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || typ == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadSpec, spec)
	}
	return strings.ToLower(typ), name, nil
}

// SplitSpecs splits a whitespace or comma separated list of specs. Text
// between balanced braces is kept together, so inline tables may contain
// separators.
func SplitSpecs(list string) []string {
	var (
		specs   []string
		current strings.Builder
		depth   int
	)
	flush := func() {
		if current.Len() > 0 {
			specs = append(specs, current.String())
			current.Reset()
		}
	}
	for _, r := range list {
		switch {
		case r == '{':
			depth++
			current.WriteRune(r)
		case r == '}':
			if depth > 0 {
				depth--
			}
			current.WriteRune(r)
		case depth == 0 && (r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return specs
}

// foldKey applies Unicode case folding for FlagFoldFixed lookups.
func foldKey(key string) string {
	return cases.Fold().String(key)
}

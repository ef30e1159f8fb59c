package dict

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// regexpDict matches keys against an ordered list of patterns. Each
// source line has the form
//
//	/pattern/flags result
//
// where any non-alphanumeric character may serve as delimiter. Flag "i"
// makes the match case-insensitive; a leading "!" inverts it. The result
// may refer to submatches as $1 or ${1}. The first matching rule wins.
type regexpDict struct {
	rules []regexpRule
}

type regexpRule struct {
	re      *regexp.Regexp
	negate  bool
	result  string
	lineno  int
	pattern string
}

func openRegexp(name string, _ Flags, _ *slog.Logger) (Dict, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	d := &regexpDict{}
	var parseErr error
	err = readLogicalLines(file, func(lineno int, line string) {
		if parseErr != nil {
			return
		}
		rule, err := parseRegexpRule(line)
		if err != nil {
			parseErr = fmt.Errorf("%s line %d: %w", name, lineno, err)
			return
		}
		rule.lineno = lineno
		d.rules = append(d.rules, rule)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return d, nil
}

func parseRegexpRule(line string) (regexpRule, error) {
	var rule regexpRule
	if strings.HasPrefix(line, "!") {
		rule.negate = true
		line = strings.TrimSpace(line[1:])
	}
	if line == "" {
		return rule, fmt.Errorf("%w: missing pattern", ErrBadSpec)
	}
	delim := line[0]
	if isAlnumByte(delim) || delim == ' ' || delim == '\\' {
		return rule, fmt.Errorf("%w: bad pattern delimiter %q", ErrBadSpec, delim)
	}
	end := strings.IndexByte(line[1:], delim)
	if end < 0 {
		return rule, fmt.Errorf("%w: unterminated pattern", ErrBadSpec)
	}
	pattern := line[1 : end+1]
	rest := line[end+2:]

	var opts string
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		opts, rest = rest[:i], rest[i+1:]
	} else {
		opts, rest = rest, ""
	}
	for _, opt := range opts {
		switch opt {
		case 'i':
			pattern = "(?i)" + pattern
		default:
			return rule, fmt.Errorf("%w: unknown pattern flag %q", ErrBadSpec, opt)
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule, fmt.Errorf("%w: %v", ErrBadSpec, err)
	}
	rule.re = re
	rule.pattern = pattern
	rule.result = strings.TrimSpace(rest)
	if rule.negate && strings.Contains(rule.result, "$") {
		return rule, fmt.Errorf("%w: negated pattern cannot use submatches", ErrBadSpec)
	}
	return rule, nil
}

func (d *regexpDict) Lookup(key string) (string, bool, error) {
	for _, rule := range d.rules {
		match := rule.re.FindStringSubmatchIndex(key)
		if rule.negate {
			if match == nil {
				return rule.result, true, nil
			}
			continue
		}
		if match == nil {
			continue
		}
		return string(rule.re.ExpandString(nil, rule.result, key, match)), true, nil
	}
	return "", false, nil
}

// Flags reports pattern-key capability. Folding fixed keys does not apply
// to patterns; use the "i" flag instead.
func (d *regexpDict) Flags() Flags {
	return FlagPattern | FlagSrcRHSIsFile | FlagLock
}

func (d *regexpDict) Close() error {
	d.rules = nil
	return nil
}

func isAlnumByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

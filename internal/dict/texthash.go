package dict

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gofrs/flock"

	"spool/internal/logging"
)

// openTexthash loads a "key value" source file into memory. Blank lines
// and lines starting with "#" are ignored; a line starting with whitespace
// continues the previous one.
func openTexthash(name string, flags Flags, logger *slog.Logger) (Dict, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if flags&FlagLock != 0 {
		lock := flock.New(name)
		if err := lock.RLock(); err != nil {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
		defer func() {
			_ = lock.Unlock()
		}()
	}

	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	t := newTable(flags)
	err = readLogicalLines(file, func(lineno int, line string) {
		key, value := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			key, value = line[:i], line[i+1:]
		}
		value = strings.TrimSpace(value)
		if value == "" {
			logging.WarnWithContext(logger, "texthash entry has no value", "dict_format",
				logging.String("path", name),
				logging.Int("line", lineno),
				logging.String(logging.FieldErrorHint, "expected format: key whitespace value"),
				logging.String(logging.FieldImpact, "entry ignored"))
			return
		}
		if !t.put(key, value) {
			logging.WarnWithContext(logger, "texthash duplicate entry", "dict_format",
				logging.String("path", name),
				logging.Int("line", lineno),
				logging.String("key", key),
				logging.String(logging.FieldImpact, "first entry kept"))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return t, nil
}

// readLogicalLines joins continuation lines and strips comments. fn gets
// the line number where each logical line started.
func readLogicalLines(file *os.File, fn func(lineno int, line string)) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		pending   strings.Builder
		startLine int
		lineno    int
	)
	flush := func() {
		if pending.Len() > 0 {
			fn(startLine, strings.TrimSpace(pending.String()))
			pending.Reset()
		}
	}
	for scanner.Scan() {
		lineno++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if raw[0] == ' ' || raw[0] == '\t' {
			if pending.Len() > 0 {
				pending.WriteByte(' ')
				pending.WriteString(trimmed)
				continue
			}
		}
		flush()
		startLine = lineno
		pending.WriteString(trimmed)
	}
	flush()
	return scanner.Err()
}

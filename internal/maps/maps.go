package maps

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/VictoriaMetrics/metrics"

	"spool/internal/dict"
	"spool/internal/logging"
)

// ErrConfig reports a table that returned something the caller cannot
// use: an empty value or an undecodable file-backed value.
var ErrConfig = errors.New("lookup table configuration error")

var lookupsTotal = metrics.NewCounter("spool_map_lookups_total")

// MapSet is an ordered list of shared lookup tables.
type MapSet struct {
	title   string
	specs   []string
	keys    []string
	flags   dict.Flags
	reg     *dict.Registry
	logger  *slog.Logger
	lastErr error
}

// New opens every table named in specList with flags and returns the set.
// Tables already open in reg with the same flags are shared. A table that
// cannot provide flags fails with an error wrapping dict.ErrCapability; any
// tables opened before the failure are released.
func New(reg *dict.Registry, title, specList string, flags dict.Flags, logger *slog.Logger) (*MapSet, error) {
	m := &MapSet{
		title:  title,
		flags:  flags,
		reg:    reg,
		logger: logging.NewComponentLogger(logger, "maps").With(logging.String(logging.FieldTable, title)),
	}
	for _, spec := range dict.SplitSpecs(specList) {
		key, err := reg.Open(spec, os.O_RDONLY, flags)
		if err != nil {
			m.release()
			return nil, fmt.Errorf("%s: %w", title, err)
		}
		m.specs = append(m.specs, spec)
		m.keys = append(m.keys, key)
	}
	return m, nil
}

// Title returns the name the set was created with.
func (m *MapSet) Title() string {
	return m.title
}

// Specs returns the table specs in search order.
func (m *MapSet) Specs() []string {
	return append([]string(nil), m.specs...)
}

// Err describes the most recent lookup. It is nil after a successful
// lookup and after a plain miss.
func (m *MapSet) Err() error {
	return m.lastErr
}

// Find returns the value of key from the first table that has it. Tables
// whose flags share no bit with filter are skipped unless filter is zero.
// An empty value or a table failure stops the search, reports not found,
// and is recorded in Err.
func (m *MapSet) Find(key string, filter dict.Flags) (string, bool) {
	if m == nil {
		return "", false
	}
	m.lastErr = nil
	if key == "" {
		return "", false
	}
	lookupsTotal.Inc()
	for i, regKey := range m.keys {
		d, ok := m.reg.Get(regKey)
		if !ok {
			m.lastErr = fmt.Errorf("%s: table %s is no longer open", m.title, m.specs[i])
			return "", false
		}
		if filter != 0 && d.Flags()&filter == 0 {
			continue
		}
		value, found, err := d.Lookup(key)
		if err != nil {
			m.lastErr = fmt.Errorf("%s: %s: %w", m.title, m.specs[i], err)
			m.logger.Debug("table lookup failed",
				logging.String("dict", m.specs[i]),
				logging.String("key", key),
				logging.Error(err))
			return "", false
		}
		if !found {
			continue
		}
		if value == "" {
			logging.WarnWithContext(m.logger, "table returned an empty value", "map_empty_value",
				logging.String("dict", m.specs[i]),
				logging.String("key", key),
				logging.String(logging.FieldErrorHint, "remove the entry or give it a value"),
				logging.String(logging.FieldImpact, "lookup treated as not found"))
			m.lastErr = fmt.Errorf("%s: %s: empty value for %q: %w", m.title, m.specs[i], key, ErrConfig)
			return "", false
		}
		return value, true
	}
	return "", false
}

// FindFileBacked is Find for sets opened with dict.FlagSrcRHSIsFile. The
// stored value is base64 and is returned decoded. Calling it on a set
// without that flag is a programming error and panics.
func (m *MapSet) FindFileBacked(key string, filter dict.Flags) ([]byte, bool) {
	if m != nil && m.flags&dict.FlagSrcRHSIsFile == 0 {
		panic(fmt.Sprintf("maps: %s: file-backed lookup on a set opened with flags %s", m.title, m.flags))
	}
	value, ok := m.Find(key, filter)
	if !ok {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		m.lastErr = fmt.Errorf("%s: malformed base64 value for %q: %w", m.title, key, ErrConfig)
		logging.WarnWithContext(m.logger, "table value is not valid base64", "map_decode",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "lookup treated as not found"))
		return nil, false
	}
	return decoded, true
}

// Free releases the set's tables and returns nil so callers can write
// m = m.Free().
func (m *MapSet) Free() *MapSet {
	if m != nil {
		m.release()
	}
	return nil
}

func (m *MapSet) release() {
	for _, key := range m.keys {
		if err := m.reg.Release(key); err != nil {
			m.logger.Warn("release table failed", logging.String("key", key), logging.Error(err))
		}
	}
	m.keys = nil
	m.specs = nil
}

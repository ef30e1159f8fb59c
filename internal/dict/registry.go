package dict

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"spool/internal/logging"
)

// Opener opens one backend type. name is the part of the spec after the
// colon.
type Opener func(name string, flags Flags, logger *slog.Logger) (Dict, error)

// Registry shares open backends between callers. It is safe for concurrent
// use.
type Registry struct {
	mu      sync.Mutex
	openers map[string]Opener
	entries map[string]*entry
	logger  *slog.Logger
}

type entry struct {
	spec string
	dict Dict
	refs int
}

// NewRegistry returns a registry with the built-in backend types.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		openers: map[string]Opener{
			"inline":   openInline,
			"static":   openStatic,
			"texthash": openTexthash,
			"regexp":   openRegexp,
			"sqlite":   openSQLite,
			"fail":     openFail,
		},
		entries: make(map[string]*entry),
		logger:  logging.NewComponentLogger(logger, "dict"),
	}
}

// Types lists the registered backend types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.openers))
	for typ := range r.openers {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// Key returns the canonical registry key for spec opened with mode and
// flags.
func Key(spec string, mode int, flags Flags) (string, error) {
	typ, name, err := ParseSpec(spec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s(%d,%s)", typ, name, mode, flags), nil
}

// Open acquires a reference to the backend for spec and returns its
// canonical key. Only read-only access is supported. The backend is opened
// on first use; it must report a type flag matching any type flag in flags
// and every requested behaviour flag, otherwise ErrCapability is returned.
func (r *Registry) Open(spec string, mode int, flags Flags) (string, error) {
	if mode != os.O_RDONLY {
		return "", fmt.Errorf("open %s: only read-only access is supported", spec)
	}
	key, err := Key(spec, mode, flags)
	if err != nil {
		return "", err
	}
	typ, name, _ := ParseSpec(spec)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		existing.refs++
		return key, nil
	}

	opener, ok := r.openers[typ]
	if !ok {
		return "", fmt.Errorf("open %s: %w %q", spec, ErrUnknownType, typ)
	}
	d, err := opener(name, flags, r.logger)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", spec, err)
	}
	if err := checkCapability(d.Flags(), flags); err != nil {
		_ = d.Close()
		return "", fmt.Errorf("open %s: %w", spec, err)
	}
	if flags&FlagDebug != 0 {
		d = &debugDict{Dict: d, spec: spec, logger: r.logger}
	}
	r.entries[key] = &entry{spec: spec, dict: d, refs: 1}
	r.logger.Debug("dictionary opened",
		logging.String("key", key),
		logging.String("flags", d.Flags().String()))
	return key, nil
}

func checkCapability(have, want Flags) error {
	if wantType := want & typeFlags; wantType != 0 && have&wantType == 0 {
		return fmt.Errorf("%w: want %s, have %s", ErrCapability, wantType, have&typeFlags)
	}
	if request := want &^ (typeFlags | FlagDebug); !have.Has(request) {
		return fmt.Errorf("%w: want %s, have %s", ErrCapability, request, have&^typeFlags)
	}
	return nil
}

// Get returns the backend registered under key.
func (r *Registry) Get(key string) (Dict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return e.dict, true
}

// Spec returns the "type:name" spec registered under key.
func (r *Registry) Spec(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.spec
	}
	return ""
}

// Refs returns the reference count of key, zero when not registered.
func (r *Registry) Refs(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Release drops one reference to key. The last release closes the backend.
func (r *Registry) Release(key string) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("release %s: not registered", key)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, key)
	r.mu.Unlock()

	r.logger.Debug("dictionary closed", logging.String("key", key))
	return e.dict.Close()
}

// Close closes every registered backend regardless of reference counts.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for key, e := range entries {
		if err := e.dict.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

type debugDict struct {
	Dict
	spec   string
	logger *slog.Logger
}

func (d *debugDict) Flags() Flags {
	return d.Dict.Flags() | FlagDebug
}

func (d *debugDict) Lookup(key string) (string, bool, error) {
	value, ok, err := d.Dict.Lookup(key)
	d.logger.Debug("dictionary lookup",
		logging.String("dict", d.spec),
		logging.String("key", key),
		logging.String("value", value),
		logging.Bool("found", ok),
		logging.Bool("failed", err != nil))
	return value, ok, err
}

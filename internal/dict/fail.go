package dict

import (
	"fmt"
	"log/slog"
)

// failDict fails every lookup. It stands in for a table that is known to
// be broken so callers exercise their error paths.
type failDict struct {
	name string
}

func openFail(name string, _ Flags, _ *slog.Logger) (Dict, error) {
	return &failDict{name: name}, nil
}

func (f *failDict) Lookup(string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: fail:%s", ErrLookup, f.name)
}

func (f *failDict) Flags() Flags {
	return FlagFixed | FlagPattern | FlagSrcRHSIsFile | FlagFoldFixed | FlagLock
}

func (f *failDict) Close() error { return nil }

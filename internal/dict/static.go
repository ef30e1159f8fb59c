package dict

import "log/slog"

// staticDict returns the same value for every key.
type staticDict struct {
	value string
}

func openStatic(name string, _ Flags, _ *slog.Logger) (Dict, error) {
	return &staticDict{value: name}, nil
}

func (s *staticDict) Lookup(string) (string, bool, error) {
	return s.value, true, nil
}

func (s *staticDict) Flags() Flags {
	return FlagFixed | FlagSrcRHSIsFile | FlagFoldFixed | FlagLock
}

func (s *staticDict) Close() error { return nil }

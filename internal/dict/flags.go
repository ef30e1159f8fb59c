package dict

import "strings"

// Flags describe what a backend is and what it was asked to do.
type Flags uint32

const (
	// FlagFixed marks a backend whose keys are matched literally.
	FlagFixed Flags = 1 << iota
	// FlagPattern marks a backend whose keys are patterns.
	FlagPattern
	// FlagSrcRHSIsFile marks values as base64-encoded file content.
	FlagSrcRHSIsFile
	// FlagFoldFixed requests case folding of fixed-key lookups.
	FlagFoldFixed
	// FlagLock requests a shared lock on the source while it is read.
	FlagLock
	// FlagDebug logs every lookup.
	FlagDebug
)

const typeFlags = FlagFixed | FlagPattern

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagFixed, "fixed"},
	{FlagPattern, "pattern"},
	{FlagSrcRHSIsFile, "src_rhs_is_file"},
	{FlagFoldFixed, "fold_fix"},
	{FlagLock, "lock"},
	{FlagDebug, "debug"},
}

// String renders the set flags joined by "|", or "0" when none are set.
func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for _, entry := range flagNames {
		if f&entry.flag != 0 {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

package resolve

import "strings"

// Flags describe a resolve result.
type Flags int

const (
	// FlagFinal marks a recipient that needs no further rewriting.
	FlagFinal Flags = 1 << 0
	// FlagRouted marks an address with a source route.
	FlagRouted Flags = 1 << 1
	// FlagError marks an address that must be bounced.
	FlagError Flags = 1 << 2
	// FlagFail marks a result produced while a lookup table was failing;
	// the caller should defer delivery.
	FlagFail Flags = 1 << 3
	// FlagShortcut marks a result taken from a shortcut table.
	FlagShortcut Flags = 1 << 4

	ClassLocal   Flags = 1 << 8
	ClassAlias   Flags = 1 << 9
	ClassVirtual Flags = 1 << 10
	ClassRelay   Flags = 1 << 11
	ClassDefault Flags = 1 << 12

	ClassMask = ClassLocal | ClassAlias | ClassVirtual | ClassRelay | ClassDefault
)

// ServerFlagFail is set by the service in the leading flags attribute of a
// reply when one of its tables failed during the request.
const ServerFlagFail = 1 << 0

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagFinal, "final"},
	{FlagRouted, "routed"},
	{FlagError, "error"},
	{FlagFail, "fail"},
	{FlagShortcut, "shortcut"},
	{ClassLocal, "local"},
	{ClassAlias, "alias"},
	{ClassVirtual, "virtual"},
	{ClassRelay, "relay"},
	{ClassDefault, "default"},
}

// Class returns the address class bits of f.
func (f Flags) Class() Flags {
	return f & ClassMask
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, entry := range flagNames {
		if f&entry.flag != 0 {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

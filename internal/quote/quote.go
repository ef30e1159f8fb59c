// Package quote converts addresses between internal form, where the local
// part is stored verbatim, and external form, where a local part that is
// not a plain dot-atom is enclosed in double quotes.
package quote

import "strings"

const specials = "()<>@,;:\\\".[]"

// Local returns the external form of addr. Only the part before the last
// "@" is quoted; the domain is copied unchanged.
func Local(addr string) string {
	local, domain, hasDomain := addr, "", false
	if at := strings.LastIndexByte(addr, '@'); at >= 0 {
		local, domain, hasDomain = addr[:at], addr[at+1:], true
	}
	if !needsQuote(local) {
		return addr
	}
	var b strings.Builder
	b.Grow(len(addr) + 4)
	b.WriteByte('"')
	for i := 0; i < len(local); i++ {
		c := local[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	if hasDomain {
		b.WriteByte('@')
		b.WriteString(domain)
	}
	return b.String()
}

// Unquote returns the internal form of addr: quote characters in the
// local part are removed and backslash escapes resolved.
func Unquote(addr string) string {
	local, domain, hasDomain := splitAddress(addr)
	if !strings.ContainsAny(local, "\"\\") {
		return addr
	}
	var b strings.Builder
	b.Grow(len(addr))
	for i := 0; i < len(local); i++ {
		c := local[i]
		switch {
		case c == '\\' && i+1 < len(local):
			i++
			b.WriteByte(local[i])
		case c == '"':
		default:
			b.WriteByte(c)
		}
	}
	if hasDomain {
		b.WriteByte('@')
		b.WriteString(domain)
	}
	return b.String()
}

// splitAddress splits an external-form address at the last "@" outside
// a quoted string.
func splitAddress(addr string) (local, domain string, hasDomain bool) {
	inQuote := false
	at := -1
	for i := 0; i < len(addr); i++ {
		switch addr[i] {
		case '\\':
			i++
		case '"':
			inQuote = !inQuote
		case '@':
			if !inQuote {
				at = i
			}
		}
	}
	if at < 0 {
		return addr, "", false
	}
	return addr[:at], addr[at+1:], true
}

func needsQuote(local string) bool {
	if local == "" {
		return false
	}
	if local[0] == '.' || local[len(local)-1] == '.' || strings.Contains(local, "..") {
		return true
	}
	for i := 0; i < len(local); i++ {
		c := local[i]
		if c <= ' ' || c >= 0x7f {
			return true
		}
		if c != '.' && strings.IndexByte(specials, c) >= 0 {
			return true
		}
	}
	return false
}

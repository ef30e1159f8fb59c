package mailqueue

import "strings"

const (
	maxNameLen  = 100
	maxLabelLen = 63
)

// ValidName reports whether name is an acceptable queue name.
func ValidName(name string) bool {
	if name == "" || len(name) > maxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isAlnum(name[i]) {
			return false
		}
	}
	return true
}

// ValidID reports whether id is an acceptable queue id. Alphanumeric ids are
// the current form; hostname-shaped ids are accepted for old spool files.
// The digits-and-dots pid.time form is rejected.
func ValidID(id string) bool {
	if id == "" || len(id) > maxNameLen {
		return false
	}
	alnum := true
	digitsDots := true
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !isAlnum(c) {
			alnum = false
		}
		if c != '.' && (c < '0' || c > '9') {
			digitsDots = false
		}
	}
	if alnum {
		return true
	}
	if digitsDots {
		return false
	}
	return validHostname(id)
}

// IsTempName reports whether name has the <usec>.<pid> shape of a temp
// file left behind by an interrupted Enter.
func IsTempName(name string) bool {
	usec, pid, ok := strings.Cut(name, ".")
	return ok && allDigits(usec) && allDigits(pid)
}

func validHostname(name string) bool {
	labels := strings.Split(name, ".")
	numeric := true
	for _, label := range labels {
		if label == "" || len(label) > maxLabelLen {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !isAlnum(c) && c != '-' {
				return false
			}
		}
		if !allDigits(label) {
			numeric = false
		}
	}
	return !numeric
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

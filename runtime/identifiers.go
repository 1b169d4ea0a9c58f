package runtime

import "strings"

// ParseThreadID splits a thread-ID of the form "subsystem@function"
// (operation threads) from a bare "subsystem" (main threads), per §3.
func ParseThreadID(id string) (subsystem, function string, isOperation bool) {
	idx := strings.IndexByte(id, '@')
	if idx < 0 {
		return id, "", false
	}
	return id[:idx], id[idx+1:], true
}

// MakeThreadID builds an operation thread's wire ID from its
// subsystem and function name.
func MakeThreadID(subsystem, function string) string {
	return subsystem + "@" + function
}

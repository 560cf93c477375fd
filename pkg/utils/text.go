// Package utils provides shared utilities for text, math, and logging.
package utils

// Truncate returns s shortened to at most maxLen runes, with "..." appended
// when anything was cut. Truncation happens on rune boundaries so multi-byte
// text is never split mid-character. If maxLen is 0 or negative, s is
// returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

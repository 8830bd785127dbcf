package thing

import "golang.org/x/text/cases"

// Fold returns the Unicode case folded form of s used for case-insensitive
// search and name ordering. "ÄRGER" and "ärger" fold to the same string.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// a Caser keeps state, so each call gets its own
	return cases.Fold().String(s)
}

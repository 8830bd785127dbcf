package thing

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts a mechanic name to its URL safe slug.
// Letters are lower cased and folded to ASCII where a base letter exists,
// digits are kept, and every other run of characters becomes a single '-'.
// "Worker Placement, Different Worker Types" → "worker-placement-different-worker-types".
func Slugify(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(norm.NFKD.String(s))
	var b strings.Builder
	b.Grow(len(runes))

	lastDash := false

	for _, r := range runes {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition
			continue

		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			lastDash = false

		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}

// MechanicSlug returns the lookup slug for a mechanic name. Names made only of
// punctuation or symbols get a hashed slug so they still map to a unique key.
func MechanicSlug(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if slug := Slugify(name); slug != "" {
		return slug
	}
	return "m-" + strconv.FormatUint(xxhash.Sum64String(strings.ToLower(name)), 16)
}

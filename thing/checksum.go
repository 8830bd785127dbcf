package thing

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MechanicsChecksum fingerprints a set of mechanic names.
// Order, case, surrounding whitespace and duplicates do not affect the result.
// An empty set still yields a non-empty checksum so that "no mechanics" is
// distinguishable from a record whose checksum was never computed.
func MechanicsChecksum(names []string) string {
	normalized := NormalizeMechanicNames(names)
	keys := make([]string, len(normalized))
	for i, name := range normalized {
		keys[i] = strings.ToLower(name)
	}
	sort.Strings(keys)

	sum := xxhash.Sum64String(strings.Join(keys, "\n"))
	return strconv.FormatUint(sum, 16)
}

// NormalizeMechanicNames trims names, drops empty entries and removes
// case-insensitive duplicates, keeping the first spelling seen.
func NormalizeMechanicNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

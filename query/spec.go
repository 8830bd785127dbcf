package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-bgg-cache/thing"
)

// Filter keys accepted by Parse. Keys outside this set are ignored.
const (
	KeyName        = "name"
	KeyPlayers     = "players"
	KeyPlaytime    = "playtime"
	KeyRank        = "rank"
	KeyRating      = "rating"
	KeyWeightMin   = "averageweight_min"
	KeyWeightMax   = "averageweight_max"
	KeyDescription = "description"
	KeyMechanics   = "mechanics"
)

// Bounds of the BGG weight scale, used to complete single sided weight ranges.
const (
	WeightScaleMin = 0.0
	WeightScaleMax = 5.0
)

// SortField names a sortable attribute.
type SortField string

const (
	SortName       SortField = "name"
	SortMinPlayers SortField = "minplayers"
	SortRating     SortField = "rating"
	SortWeight     SortField = "weight"
)

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Spec is the typed form of a caller's filter and sort parameters.
// Nil pointers and empty strings mean the filter is not applied.
type Spec struct {
	NameContains        string
	Players             *int
	Playtime            *int
	Rank                *int
	Rating              *float64
	WeightMin           *float64
	WeightMax           *float64
	DescriptionContains string
	// Mechanics holds de-duplicated mechanic slugs, sorted.
	Mechanics []string

	Sort      SortField
	Direction Direction
}

// Parse builds a Spec from a loosely typed filter mapping and sort parameters.
// It never fails: unknown keys are ignored and values that do not parse
// leave the corresponding filter unset.
func Parse(filters map[string]any, sortField, direction string) Spec {
	spec := Spec{}
	spec.Sort, spec.Direction = ParseSort(sortField, direction)

	for key, raw := range filters {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case KeyName:
			spec.NameContains = text(raw)
		case KeyDescription:
			spec.DescriptionContains = text(raw)
		case KeyPlayers:
			spec.Players = thing.OptionalInt(raw)
		case KeyPlaytime:
			spec.Playtime = thing.OptionalInt(raw)
		case KeyRank:
			spec.Rank = thing.OptionalInt(raw)
		case KeyRating:
			spec.Rating = thing.OptionalFloat(raw)
		case KeyWeightMin:
			spec.WeightMin = thing.OptionalFloat(raw)
		case KeyWeightMax:
			spec.WeightMax = thing.OptionalFloat(raw)
		case KeyMechanics:
			spec.Mechanics = mechanicSlugs(raw)
		}
	}

	if spec.WeightMin != nil && spec.WeightMax == nil {
		max := WeightScaleMax
		spec.WeightMax = &max
	}
	if spec.WeightMax != nil && spec.WeightMin == nil {
		min := WeightScaleMin
		spec.WeightMin = &min
	}

	return spec
}

// ParseSort normalizes a sort field and direction. Unknown fields fall back
// to name ascending; unknown directions fall back to ascending.
func ParseSort(field, direction string) (SortField, Direction) {
	dir := Asc
	if strings.EqualFold(strings.TrimSpace(direction), string(Desc)) {
		dir = Desc
	}

	switch strings.ToLower(strings.TrimSpace(field)) {
	case "name", "":
		return SortName, dir
	case "minplayers":
		return SortMinPlayers, dir
	case "rating", "average_rating":
		return SortRating, dir
	case "weight", "averageweight":
		return SortWeight, dir
	default:
		return SortName, Asc
	}
}

// HasWeight reports whether a weight range applies.
func (s Spec) HasWeight() bool {
	return s.WeightMin != nil && s.WeightMax != nil
}

// CacheKey renders the spec canonically. Two specs with the same filters and
// sort produce the same key.
func (s Spec) CacheKey() string {
	parts := []string{
		"name=" + s.NameContains,
		"players=" + intKey(s.Players),
		"playtime=" + intKey(s.Playtime),
		"rank=" + intKey(s.Rank),
		"rating=" + floatKey(s.Rating),
		"wmin=" + floatKey(s.WeightMin),
		"wmax=" + floatKey(s.WeightMax),
		"desc=" + s.DescriptionContains,
		"mech=" + strings.Join(s.Mechanics, ","),
		"sort=" + string(s.Sort) + ":" + string(s.Direction),
	}
	return strings.Join(parts, "|")
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case *string:
		if s == nil {
			return ""
		}
		return strings.TrimSpace(*s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		if n, ok := thing.ParseNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return ""
	}
}

// mechanicSlugs accepts a list of names or slugs, or a comma separated string.
func mechanicSlugs(v any) []string {
	var names []string
	switch list := v.(type) {
	case string:
		names = strings.Split(list, ",")
	case []string:
		names = list
	case []any:
		for _, item := range list {
			names = append(names, text(item))
		}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(names))
	slugs := make([]string, 0, len(names))
	for _, name := range names {
		slug := thing.MechanicSlug(name)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}
	if len(slugs) == 0 {
		return nil
	}
	sort.Strings(slugs)
	return slugs
}

func intKey(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func floatKey(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

package query

import (
	"reflect"
	"testing"
)

func TestParse_NumericFilters(t *testing.T) {
	spec := Parse(map[string]any{
		"players":  "2",
		"playtime": 45,
		"rank":     "100",
		"rating":   "7.5",
	}, "", "")

	if spec.Players == nil || *spec.Players != 2 {
		t.Errorf("expected players 2, got %v", spec.Players)
	}
	if spec.Playtime == nil || *spec.Playtime != 45 {
		t.Errorf("expected playtime 45, got %v", spec.Playtime)
	}
	if spec.Rank == nil || *spec.Rank != 100 {
		t.Errorf("expected rank 100, got %v", spec.Rank)
	}
	if spec.Rating == nil || *spec.Rating != 7.5 {
		t.Errorf("expected rating 7.5, got %v", spec.Rating)
	}
}

func TestParse_UnparseableValuesDropFilter(t *testing.T) {
	spec := Parse(map[string]any{
		"players": "two",
		"rating":  "",
		"rank":    nil,
	}, "", "")

	if spec.Players != nil || spec.Rating != nil || spec.Rank != nil {
		t.Errorf("expected no numeric filters, got %+v", spec)
	}
}

func TestParse_UnknownKeysIgnored(t *testing.T) {
	spec := Parse(map[string]any{"colour": "blue", "designer": "Knizia"}, "", "")

	want := Spec{Sort: SortName, Direction: Asc}
	if !reflect.DeepEqual(spec, want) {
		t.Errorf("expected %+v, got %+v", want, spec)
	}
}

func TestParse_WeightDefaults(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]any
		wantMin float64
		wantMax float64
	}{
		{name: "min only", filters: map[string]any{"averageweight_min": "3"}, wantMin: 3, wantMax: WeightScaleMax},
		{name: "max only", filters: map[string]any{"averageweight_max": 2.5}, wantMin: WeightScaleMin, wantMax: 2.5},
		{name: "both", filters: map[string]any{"averageweight_min": 1, "averageweight_max": 4}, wantMin: 1, wantMax: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Parse(tt.filters, "", "")
			if !spec.HasWeight() {
				t.Fatal("expected weight range to apply")
			}
			if *spec.WeightMin != tt.wantMin || *spec.WeightMax != tt.wantMax {
				t.Errorf("expected [%v, %v], got [%v, %v]", tt.wantMin, tt.wantMax, *spec.WeightMin, *spec.WeightMax)
			}
		})
	}

	explicit := Parse(map[string]any{"averageweight_min": "3", "averageweight_max": "5"}, "", "")
	single := Parse(map[string]any{"averageweight_min": "3"}, "", "")
	if explicit.CacheKey() != single.CacheKey() {
		t.Errorf("expected single sided range to equal explicit range, got %q and %q", single.CacheKey(), explicit.CacheKey())
	}

	if Parse(map[string]any{"averageweight_min": "heavy"}, "", "").HasWeight() {
		t.Error("expected unparseable weight to leave the range unset")
	}
}

func TestParse_Mechanics(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{name: "string list", value: []string{"Hand Management", "Dice Rolling"}, want: []string{"dice-rolling", "hand-management"}},
		{name: "comma separated", value: "Hand Management, dice-rolling", want: []string{"dice-rolling", "hand-management"}},
		{name: "any list", value: []any{"Set Collection", "set collection"}, want: []string{"set-collection"}},
		{name: "blank", value: " , ", want: nil},
		{name: "wrong type", value: 12, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Parse(map[string]any{"mechanics": tt.value}, "", "")
			if !reflect.DeepEqual(spec.Mechanics, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, spec.Mechanics)
			}
		})
	}
}

func TestParse_TextFilters(t *testing.T) {
	spec := Parse(map[string]any{"name": "  Catan ", "description": "trade"}, "", "")

	if spec.NameContains != "Catan" {
		t.Errorf("expected trimmed name filter, got %q", spec.NameContains)
	}
	if spec.DescriptionContains != "trade" {
		t.Errorf("expected description filter, got %q", spec.DescriptionContains)
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		field   string
		dir     string
		want    SortField
		wantDir Direction
	}{
		{"", "", SortName, Asc},
		{"name", "desc", SortName, Desc},
		{"minplayers", "DESC", SortMinPlayers, Desc},
		{"rating", "sideways", SortRating, Asc},
		{"averageweight", "asc", SortWeight, Asc},
		{"weight", "desc", SortWeight, Desc},
		{"publisher", "desc", SortName, Asc},
	}

	for _, tt := range tests {
		field, dir := ParseSort(tt.field, tt.dir)
		if field != tt.want || dir != tt.wantDir {
			t.Errorf("ParseSort(%q, %q): expected %s %s, got %s %s", tt.field, tt.dir, tt.want, tt.wantDir, field, dir)
		}
	}
}

func TestSpec_CacheKeyIsCanonical(t *testing.T) {
	a := Parse(map[string]any{"mechanics": []string{"B", "A"}, "players": "2"}, "rating", "desc")
	b := Parse(map[string]any{"players": 2, "mechanics": "a,b"}, "rating", "desc")

	if a.CacheKey() != b.CacheKey() {
		t.Errorf("expected equal keys, got %q and %q", a.CacheKey(), b.CacheKey())
	}

	c := Parse(map[string]any{"players": 3}, "rating", "desc")
	if a.CacheKey() == c.CacheKey() {
		t.Error("expected different filters to produce different keys")
	}
}

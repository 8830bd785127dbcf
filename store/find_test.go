package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-bgg-cache/query"
	"github.com/goliatone/go-bgg-cache/thing"
)

func seedThings(t *testing.T, s *Store, records ...thing.Parsed) {
	t.Helper()
	for _, rec := range records {
		if _, err := s.Upsert(context.Background(), rec, thing.CurrentSchemaVersion); err != nil {
			t.Fatalf("failed to seed %s: %v", rec.ID, err)
		}
	}
}

func ids(things []*thing.Thing) []string {
	out := make([]string, len(things))
	for i, t := range things {
		out[i] = t.ID
	}
	return out
}

func catalogFixture() []thing.Parsed {
	return []thing.Parsed{
		{ID: "1", Name: "Azul", MinPlayers: "2", MaxPlayers: "4", MinPlaytime: "30", MaxPlaytime: "45",
			AverageRating: "7.8", AverageWeight: "1.8", Rank: "50", Description: "Tile drafting from factories",
			Mechanics: []string{"Tile Placement", "Set Collection"}},
		{ID: "2", Name: "Jaipur", MinPlayers: "2", MaxPlayers: "2", MinPlaytime: "30", MaxPlaytime: "30",
			AverageRating: "7.4", AverageWeight: "1.5", Rank: "200", Description: "Trade goods in the market",
			Mechanics: []string{"Set Collection", "Hand Management"}},
		{ID: "3", Name: "brass", MinPlayers: "2", MaxPlayers: "4", MinPlaytime: "60", MaxPlaytime: "120",
			AverageRating: "8.6", AverageWeight: "3.9", Rank: "1", Description: "Industrial revolution",
			Mechanics: []string{"Hand Management", "Network Building"}},
		{ID: "4", Name: "Coup", MinPlayers: "2", MaxPlayers: "6", MinPlaytime: "15", MaxPlaytime: "15",
			AverageRating: "7.4", AverageWeight: "N/A", Rank: "Not Ranked", Description: "Bluff 100% of the time",
			Mechanics: []string{"Hand Management"}},
		{ID: "5", Name: "Unknown Prototype", MinPlayers: "", MaxPlayers: "garbage"},
	}
}

func TestFind_Filters(t *testing.T) {
	s, _ := newTestStore(t)
	seedThings(t, s, catalogFixture()...)
	all := []string{"1", "2", "3", "4", "5"}

	tests := []struct {
		name    string
		filters map[string]any
		want    []string
	}{
		{name: "no filters", filters: nil, want: []string{"1", "3", "4", "2", "5"}},
		{name: "name contains", filters: map[string]any{"name": "AS"}, want: []string{"3"}},
		{name: "players 2 matches exact range", filters: map[string]any{"players": "2"}, want: []string{"1", "3", "4", "2"}},
		{name: "players 3", filters: map[string]any{"players": 3}, want: []string{"1", "3", "4"}},
		{name: "players 1", filters: map[string]any{"players": 1}, want: []string{}},
		{name: "playtime", filters: map[string]any{"playtime": "45"}, want: []string{"1"}},
		{name: "rank at or better", filters: map[string]any{"rank": "100"}, want: []string{"1", "3"}},
		{name: "rating at or above", filters: map[string]any{"rating": 7.5}, want: []string{"1", "3"}},
		{name: "weight min only", filters: map[string]any{"averageweight_min": "3"}, want: []string{"3"}},
		{name: "weight max only", filters: map[string]any{"averageweight_max": "1.6"}, want: []string{"2"}},
		{name: "weight range", filters: map[string]any{"averageweight_min": 1.6, "averageweight_max": 2}, want: []string{"1"}},
		{name: "description contains", filters: map[string]any{"description": "TRADE"}, want: []string{"2"}},
		{name: "description escapes wildcards", filters: map[string]any{"description": "100%"}, want: []string{"4"}},
		{name: "mechanics all of", filters: map[string]any{"mechanics": []string{"Set Collection", "Hand Management"}}, want: []string{"2"}},
		{name: "mechanics by slug", filters: map[string]any{"mechanics": "hand-management"}, want: []string{"3", "4", "2"}},
		{name: "mechanics missing tag", filters: map[string]any{"mechanics": []string{"Set Collection", "Deck Building"}}, want: []string{}},
		{name: "unparseable filter ignored", filters: map[string]any{"players": "lots"}, want: []string{"1", "3", "4", "2", "5"}},
		{name: "unknown key ignored", filters: map[string]any{"designer": "Knizia"}, want: []string{"1", "3", "4", "2", "5"}},
		{name: "combined", filters: map[string]any{"players": 2, "mechanics": "Hand Management", "rating": "7.4"}, want: []string{"3", "4", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(context.Background(), all, query.Parse(tt.filters, "name", "asc"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestFind_MechanicsAreAndNotOr(t *testing.T) {
	s, _ := newTestStore(t)
	seedThings(t, s, thing.Parsed{ID: "1", Name: "Game", Mechanics: []string{"A", "B"}})

	match, err := s.Find(context.Background(), []string{"1"}, query.Parse(map[string]any{"mechanics": []string{"A", "B"}}, "", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(match) != 1 {
		t.Errorf("expected {A,B} to match, got %v", ids(match))
	}

	miss, err := s.Find(context.Background(), []string{"1"}, query.Parse(map[string]any{"mechanics": []string{"A", "C"}}, "", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(miss) != 0 {
		t.Errorf("expected {A,C} not to match, got %v", ids(miss))
	}
}

func TestFind_Sort(t *testing.T) {
	s, _ := newTestStore(t)
	seedThings(t, s, catalogFixture()...)
	all := []string{"5", "4", "3", "2", "1"}

	tests := []struct {
		field string
		dir   string
		want  []string
	}{
		{field: "name", dir: "asc", want: []string{"1", "3", "4", "2", "5"}},
		{field: "name", dir: "desc", want: []string{"5", "2", "4", "3", "1"}},
		// 2 and 4 share a rating; write order decides in both directions
		{field: "rating", dir: "desc", want: []string{"3", "1", "2", "4", "5"}},
		{field: "rating", dir: "asc", want: []string{"2", "4", "1", "3", "5"}},
		{field: "weight", dir: "asc", want: []string{"2", "1", "3", "4", "5"}},
		{field: "weight", dir: "desc", want: []string{"3", "1", "2", "4", "5"}},
		{field: "minplayers", dir: "asc", want: []string{"1", "2", "3", "4", "5"}},
		{field: "publisher", dir: "desc", want: []string{"1", "3", "4", "2", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.field+"_"+tt.dir, func(t *testing.T) {
			got, err := s.Find(context.Background(), all, query.Parse(nil, tt.field, tt.dir))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestFind_TiesFollowWriteOrder(t *testing.T) {
	s, clock := newTestStore(t)

	seedThings(t, s,
		thing.Parsed{ID: "20", Name: "Later", AverageRating: "7"},
		thing.Parsed{ID: "10", Name: "Earlier", AverageRating: "7"},
	)
	clock.Advance(time.Minute)

	got, err := s.Find(context.Background(), []string{"10", "20"}, query.Parse(nil, "rating", "desc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"20", "10"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}

	// rewriting a record moves it to the end of the write order
	seedThings(t, s, thing.Parsed{ID: "20", Name: "Later", AverageRating: "7"})
	got, err = s.Find(context.Background(), []string{"10", "20"}, query.Parse(nil, "rating", "desc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"10", "20"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

func TestFind_AttachesMechanicsAndSkipsUnknownIDs(t *testing.T) {
	s, _ := newTestStore(t)
	seedThings(t, s, catalogFixture()...)

	got, err := s.Find(context.Background(), []string{"2", "999", "2"}, query.Spec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if names := got[0].MechanicNames(); !reflect.DeepEqual(names, []string{"Hand Management", "Set Collection"}) {
		t.Errorf("unexpected mechanics %v", names)
	}
}

func accentedFixture() []thing.Parsed {
	return []thing.Parsed{
		{ID: "11", Name: "Ärger im Büro", Description: "ÜBERRASCHUNG im Großraumbüro"},
		{ID: "12", Name: "Çatalhöyük", Description: "Neolithic settlement"},
		{ID: "13", Name: "Café International", Description: "Seat guests by nation"},
		{ID: "14", Name: "Azul", Description: "Tile drafting"},
	}
}

func TestFind_NonASCIIFilters(t *testing.T) {
	s, _ := newTestStore(t)
	seedThings(t, s, accentedFixture()...)
	all := []string{"11", "12", "13", "14"}

	tests := []struct {
		name    string
		filters map[string]any
		want    []string
	}{
		{name: "exact stored case", filters: map[string]any{"name": "Ärger"}, want: []string{"11"}},
		{name: "lower case", filters: map[string]any{"name": "ärger"}, want: []string{"11"}},
		{name: "upper case", filters: map[string]any{"name": "ÄRGER"}, want: []string{"11"}},
		{name: "leading cedilla", filters: map[string]any{"name": "çatal"}, want: []string{"12"}},
		{name: "upper cedilla", filters: map[string]any{"name": "ÇATALHÖYÜK"}, want: []string{"12"}},
		{name: "accent inside word", filters: map[string]any{"name": "CAFÉ"}, want: []string{"13"}},
		{name: "description folded", filters: map[string]any{"description": "überraschung"}, want: []string{"11"}},
		{name: "accent is not dropped", filters: map[string]any{"name": "arger"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(context.Background(), all, query.Parse(tt.filters, "name", "asc"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestFind_NonASCIISortIgnoresCase(t *testing.T) {
	s, _ := newTestStore(t)
	seedThings(t, s,
		thing.Parsed{ID: "21", Name: "éclipse"},
		thing.Parsed{ID: "22", Name: "Éclipse"},
		thing.Parsed{ID: "23", Name: "Zoo"},
		thing.Parsed{ID: "24", Name: "azul"},
	)

	got, err := s.Find(context.Background(), []string{"21", "22", "23", "24"}, query.Parse(nil, "name", "asc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// both spellings fold to the same key, so write order breaks the tie
	if want := []string{"24", "23", "21", "22"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}

	got, err = s.Find(context.Background(), []string{"21", "22", "23", "24"}, query.Parse(nil, "name", "desc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"21", "22", "23", "24"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

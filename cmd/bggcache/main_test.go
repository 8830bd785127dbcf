package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goliatone/go-bgg-cache/pkg/testsupport"
	"github.com/goliatone/go-bgg-cache/thing"
)

const thingsXML = `<?xml version="1.0" encoding="utf-8"?>
<items>
	<item type="boardgame" id="1">
		<name type="primary" sortindex="1" value="Brass" />
		<minplayers value="2" />
		<maxplayers value="4" />
		<link type="boardgamemechanic" id="2040" value="Hand Management" />
		<statistics page="1"><ratings><average value="8.6" /><averageweight value="3.9" /></ratings></statistics>
	</item>
	<item type="boardgame" id="2">
		<name type="primary" sortindex="1" value="Azul" />
		<minplayers value="2" />
		<maxplayers value="4" />
		<link type="boardgamemechanic" id="2002" value="Tile Placement" />
		<statistics page="1"><ratings><average value="7.7" /><averageweight value="1.8" /></ratings></statistics>
	</item>
</items>`

func setupEnv(t *testing.T) *testsupport.Upstream {
	t.Helper()
	up := testsupport.NewUpstream(t)
	t.Setenv("BGGCACHE_DATABASE_DSN", "file:"+filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("BGGCACHE_BGG_BASE_URL", up.URL)
	t.Setenv("BGGCACHE_BGG_MAX_ATTEMPTS", "1")
	t.Setenv("BGGCACHE_REFRESH_DELAY", "0s")
	t.Setenv("BGGCACHE_LOG_LEVEL", "error")
	return up
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestQuery_JSON(t *testing.T) {
	up := setupEnv(t)
	up.Enqueue("/xmlapi2/thing", testsupport.XML([]byte(thingsXML)))

	out, err := runCLI(t, "query", "--ids", "1,2", "--sort", "rating", "--dir", "desc", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Things  []thing.Thing `json:"things"`
		Partial bool          `json:"partial"`
		Count   int           `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("failed to decode output %q: %v", out, err)
	}
	if body.Count != 2 || body.Partial {
		t.Fatalf("expected 2 complete results, got %+v", body)
	}
	if body.Things[0].Name != "Brass" {
		t.Errorf("expected highest rated first, got %s", body.Things[0].Name)
	}
}

func TestQuery_TableWithFilter(t *testing.T) {
	up := setupEnv(t)
	up.Enqueue("/xmlapi2/thing", testsupport.XML([]byte(thingsXML)))

	out, err := runCLI(t, "query", "--ids", "1", "--ids", "2", "--filter", "mechanics=Tile Placement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Azul") || strings.Contains(out, "Brass") {
		t.Errorf("expected only Azul in output, got:\n%s", out)
	}
	if !strings.Contains(out, "MECHANICS") {
		t.Errorf("expected table header, got:\n%s", out)
	}
}

func TestQuery_PartialNotice(t *testing.T) {
	up := setupEnv(t)
	up.Enqueue("/xmlapi2/thing", testsupport.Status(http.StatusBadRequest))

	out, err := runCLI(t, "query", "--ids", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No games found.") {
		t.Errorf("expected empty notice, got:\n%s", out)
	}
	if !strings.Contains(out, "may be stale") {
		t.Errorf("expected partial notice, got:\n%s", out)
	}
}

func TestRefresh_Force(t *testing.T) {
	up := setupEnv(t)
	up.Enqueue("/xmlapi2/thing", testsupport.XML([]byte(thingsXML)))

	out, err := runCLI(t, "refresh", "--ids", "1,2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Refreshed 2 record(s) in 1 batch(es).") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = runCLI(t, "refresh", "--ids", "1,2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Refreshed 0 record(s) in 0 batch(es).") {
		t.Errorf("expected fresh records to be skipped, got:\n%s", out)
	}

	out, err = runCLI(t, "refresh", "--ids", "1,2", "--force")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Refreshed 2 record(s)") {
		t.Errorf("expected forced refresh, got:\n%s", out)
	}
}

func TestRefresh_RequiresIDs(t *testing.T) {
	setupEnv(t)
	if _, err := runCLI(t, "refresh", "--ids", " , "); err == nil {
		t.Error("expected error without ids")
	}
}

func TestCollection_RequiresUsername(t *testing.T) {
	setupEnv(t)
	if _, err := runCLI(t, "collection"); err == nil {
		t.Error("expected argument error")
	}
}

func TestInvalidConfigFile(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "refresh", "--ids", "1")
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"players=3", "mechanics=Dice Rolling,Tile Placement", "mechanics=Drafting", "name= azul "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"players":   "3",
		"name":      "azul",
		"mechanics": []string{"Dice Rolling", "Tile Placement", "Drafting"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := parseFilters([]string{"players"}); err == nil {
		t.Error("expected error for a filter without value")
	}
}

func TestPlayers(t *testing.T) {
	two, four := 2, 4
	tests := []struct {
		thing thing.Thing
		want  string
	}{
		{thing: thing.Thing{}, want: "-"},
		{thing: thing.Thing{MinPlayers: &two, MaxPlayers: &four}, want: "2-4"},
		{thing: thing.Thing{MinPlayers: &two, MaxPlayers: &two}, want: "2"},
		{thing: thing.Thing{MaxPlayers: &four}, want: "?-4"},
	}
	for _, tt := range tests {
		if got := players(&tt.thing); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

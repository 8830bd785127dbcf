package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goliatone/go-bgg-cache/catalog"
	"github.com/goliatone/go-bgg-cache/thing"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, result catalog.Result) error {
	things := result.Things
	if things == nil {
		things = []*thing.Thing{}
	}
	if jsonOutput {
		return printJSON(w, map[string]any{
			"things":  things,
			"partial": result.Partial,
			"count":   len(things),
		})
	}

	if len(things) == 0 {
		fmt.Fprintln(w, "No games found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPLAYERS\tRATING\tWEIGHT\tMECHANICS")
		for _, t := range things {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID,
				t.Name,
				players(t),
				floatCell(t.AverageRating),
				floatCell(t.AverageWeight),
				strings.Join(t.MechanicNames(), ", "),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if result.Partial {
		fmt.Fprintln(w, "\nLoaded, but some details may be stale.")
	}
	return nil
}

func players(t *thing.Thing) string {
	switch {
	case t.MinPlayers == nil && t.MaxPlayers == nil:
		return "-"
	case t.MinPlayers == nil:
		return "?-" + strconv.Itoa(*t.MaxPlayers)
	case t.MaxPlayers == nil || *t.MaxPlayers == *t.MinPlayers:
		return strconv.Itoa(*t.MinPlayers)
	default:
		return strconv.Itoa(*t.MinPlayers) + "-" + strconv.Itoa(*t.MaxPlayers)
	}
}

func floatCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// splitList flattens comma separated values and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

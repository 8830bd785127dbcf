package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var (
		ids       []string
		filters   []string
		sortField string
		sortDir   string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Refresh stale records and list the matching ones",
		Long: `Refreshes the stale subset of the given ids, then prints the stored records
matching the filters. Filters are key=value pairs: name, players, playtime,
rank, rating, averageweight_min, averageweight_max, description, mechanics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids = splitList(ids)
			if len(ids) == 0 {
				return fmt.Errorf("at least one id is required")
			}
			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, err := buildContainer(ctx)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			result, err := container.Catalog().RefreshAndRead(ctx, ids, parsed, sortField, sortDir)
			if err != nil {
				return fmt.Errorf("querying: %w", err)
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Thing ids (comma separated or repeated)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringVar(&sortField, "sort", "name", "Sort field: name, minplayers, rating, weight")
	cmd.Flags().StringVar(&sortDir, "dir", "asc", "Sort direction: asc or desc")
	return cmd
}

// parseFilters turns key=value pairs into a filter map. Repeated mechanics
// accumulate; other repeated keys keep the last value.
func parseFilters(pairs []string) (map[string]any, error) {
	filters := make(map[string]any, len(pairs))
	var mechanics []string
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		if strings.EqualFold(key, "mechanics") {
			mechanics = append(mechanics, splitList([]string{value})...)
			continue
		}
		filters[key] = strings.TrimSpace(value)
	}
	if len(mechanics) > 0 {
		filters["mechanics"] = mechanics
	}
	return filters, nil
}

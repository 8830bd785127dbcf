package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectionCmd() *cobra.Command {
	var (
		filters   []string
		sortField string
		sortDir   string
	)

	cmd := &cobra.Command{
		Use:   "collection <username>",
		Short: "List a user's owned games",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			result, err := container.Catalog().Collection(ctx, args[0], parsed, sortField, sortDir)
			if err != nil {
				return fmt.Errorf("reading collection: %w", err)
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringVar(&sortField, "sort", "name", "Sort field: name, minplayers, rating, weight")
	cmd.Flags().StringVar(&sortDir, "dir", "asc", "Sort direction: asc or desc")
	return cmd
}

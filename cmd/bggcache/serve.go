package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-bgg-cache/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			container, err := buildContainer(ctx)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			listen := container.Config().HTTP.Addr
			if addr != "" {
				listen = addr
			}
			return httpapi.ListenAndServe(ctx, listen, container.HTTPHandler(), container.Logger())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	return cmd
}

// Command bggcache serves and maintains the local BGG thing cache.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-bgg-cache/internal/config"
	"github.com/goliatone/go-bgg-cache/pkg/di"
)

var (
	version    = "0.1.0-dev"
	configPath string
	jsonOutput bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bggcache",
		Short:         "Local cache of BoardGameGeek game records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newServeCmd(),
		newRefreshCmd(),
		newQueryCmd(),
		newCollectionCmd(),
	)
	return rootCmd
}

// buildContainer loads the configuration and wires the application. The
// caller closes the container.
func buildContainer(ctx context.Context, opts ...di.Option) (*di.Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	container, err := di.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("building application: %w", err)
	}
	return container, nil
}

func closeContainer(container *di.Container) {
	if err := container.Close(context.Background()); err != nil {
		container.Logger().Warn("shutdown incomplete", "error", err)
	}
}

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/changichirp/internal/cli"
	"github.com/cloo-solutions/changichirp/internal/config"
	"github.com/cloo-solutions/changichirp/internal/index"
	"github.com/cloo-solutions/changichirp/internal/logger"
)

// Pruner is implemented by index stores that keep superseded generations.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// IndexCmd returns the index command group
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect published index generations",
	}
	cmd.AddCommand(indexShowCmd())
	cmd.AddCommand(indexPruneCmd())
	return cmd
}

func indexShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the manifest of the current generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Setup(cfg.Debug)

			store, closeStore, err := openStore(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			ix, err := store.Load(ctx)
			if err != nil {
				return err
			}
			return printManifest(cmd, ix.Manifest())
		},
	}
}

func indexPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete superseded generations (postgres store only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Setup(cfg.Debug)
			keep, _ := cmd.Flags().GetInt("keep")

			store, closeStore, err := openStore(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			pruner, ok := store.(Pruner)
			if !ok {
				return fmt.Errorf("index store %q does not support pruning", cfg.IndexStore)
			}
			deleted, err := pruner.Prune(ctx, keep)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d generation(s)\n", deleted)
			return nil
		},
	}
	cmd.Flags().Int("keep", 2, "Superseded generations to keep")
	return cmd
}

func printManifest(cmd *cobra.Command, m index.Manifest) error {
	if cli.OutputJSON(cmd) {
		return json.NewEncoder(os.Stdout).Encode(m)
	}
	fmt.Printf("Generation: %s\n", m.Generation)
	fmt.Printf("Model:      %s\n", m.Model)
	fmt.Printf("Dimensions: %d\n", m.Dimensions)
	fmt.Printf("Metric:     %s\n", m.Metric)
	fmt.Printf("Chunks:     %d\n", m.Count)
	fmt.Printf("Built at:   %s\n", m.BuiltAt.UTC().Format(time.RFC3339))
	return nil
}

// Command taxonomyd serves and maintains a category taxonomy.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taxonomy-backend/internal/config"
	"taxonomy-backend/internal/di"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "taxonomyd",
	Short:         "Category taxonomy service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "Directory holding base.yaml and <environment>.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(configDir, config.EnvironmentFromEnv())
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// withContainer builds the container, runs fn and releases everything.
func withContainer(ctx context.Context, fn func(*di.Container) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = container.Logger.Sync() }()
	return fn(container)
}

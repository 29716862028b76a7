package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taxonomy-backend/internal/di"
)

var loadCmd = &cobra.Command{
	Use:   "load <seed.yaml>",
	Short: "Load scopes, categories and items from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		seed, err := ParseSeed(f)
		if err != nil {
			return err
		}
		return withContainer(cmd.Context(), func(c *di.Container) error {
			stats, err := seed.Apply(cmd.Context(), c.API)
			if err != nil {
				return err
			}
			c.Logger.Info("seed loaded",
				zap.String("file", args[0]),
				zap.Int("scopes", stats.Scopes),
				zap.Int("categories", stats.Categories),
				zap.Int("items", stats.Items))
			fmt.Fprintf(cmd.OutOrStdout(), "created %d scopes, %d categories, %d items\n",
				stats.Scopes, stats.Categories, stats.Items)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

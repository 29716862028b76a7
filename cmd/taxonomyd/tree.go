package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"taxonomy-backend/internal/di"
	"taxonomy-backend/internal/domain/category"
)

var treeCmd = &cobra.Command{
	Use:   "tree [scope]",
	Short: "Print the category tree of one scope, or of every scope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *di.Container) error {
			var scopes []category.Scope
			if len(args) == 1 {
				scope, err := c.Observer.Cache().GetScopeByName(args[0])
				if err != nil {
					return err
				}
				scopes = []category.Scope{scope}
			} else {
				scopes = c.Observer.Cache().Scopes()
			}

			out := cmd.OutOrStdout()
			for _, scope := range scopes {
				fmt.Fprintf(out, "%s\n", scope.Name)
				tree, err := c.API.Categories.GetTreeForScope(cmd.Context(), scope.ID)
				if err != nil {
					return err
				}
				printScopeTree(out, tree)
			}
			return nil
		})
	},
}

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors <category-id>",
	Short: "Print the path from the root category down to a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *di.Container) error {
			id := category.CategoryID(args[0])
			if _, err := c.Observer.Cache().GetCategory(id); err != nil {
				return err
			}
			path, err := c.Observer.Cache().GetAncestorPath(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatPath(path))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(treeCmd, ancestorsCmd)
}

// printScopeTree prints the roots of a scope tree one level in, unwrapping
// the synthetic root ToTree adds when a scope has several roots.
func printScopeTree(w io.Writer, tree *category.CategoryNode) {
	if tree == nil {
		return
	}
	if tree.Category().ID == "" {
		for _, root := range tree.ChildCategories() {
			printTree(w, root, 1)
		}
		return
	}
	printTree(w, tree, 1)
}

func printTree(w io.Writer, node *category.CategoryNode, depth int) {
	cat := node.Category()
	line := strings.Repeat("  ", depth) + cat.Name
	if n := len(node.ChildItems()); n > 0 {
		line += fmt.Sprintf(" (%d items)", n)
	}
	fmt.Fprintln(w, line)
	for _, child := range node.ChildCategories() {
		printTree(w, child, depth+1)
	}
}

func formatPath(path []category.Category) string {
	names := make([]string, len(path))
	for i, c := range path {
		names[i] = c.Name
	}
	return strings.Join(names, " > ")
}

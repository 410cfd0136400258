package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/kayz/scribe/internal/templates"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List installed templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		nodes, err := templates.NewStore(cfg.Templates.Dir).List()
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No templates in %s\n", cfg.Templates.Dir)
			return nil
		}
		printTree(cmd.OutOrStdout(), nodes, 0)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func printTree(w io.Writer, nodes []templates.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.Type == templates.NodeFolder {
			fmt.Fprintf(w, "%s%s/\n", indent, n.Name)
			printTree(w, n.Children, depth+1)
			continue
		}
		line := fmt.Sprintf("%s%s  (%s)", indent, n.Label(), n.Path)
		if n.Description != "" {
			line += "  " + n.Description
		}
		fmt.Fprintln(w, line)
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/kayz/scribe/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file and create the templates folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg := config.DefaultConfig()
		if err := cfg.SaveTo(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(loaded.Templates.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create templates folder: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nTemplates go in %s\nBase schema: %s\n",
			path, loaded.Templates.Dir, loaded.Templates.Schema)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

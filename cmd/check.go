package cmd

import (
	"fmt"
	"io"

	"github.com/kayz/scribe/internal/engine"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/templates"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the base schema and every template",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		base, unavailable := loadBaseSchema(cfg.Templates.Schema)
		if unavailable != "" {
			return fmt.Errorf("base schema: %s", unavailable)
		}
		problems, err := checkTemplates(cmd.OutOrStdout(), base, templates.NewStore(cfg.Templates.Dir))
		if err != nil {
			return err
		}
		if problems > 0 {
			return fmt.Errorf("%d template problem(s)", problems)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All templates OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// checkTemplates loads every template, merges its override and reports
// overrides that fail, merged schemas that do not validate, and required
// keys that no field or rule can supply. Unknown keys are warnings.
func checkTemplates(w io.Writer, base *schema.Schema, store *templates.Store) (int, error) {
	nodes, err := store.List()
	if err != nil {
		return 0, err
	}

	problems := 0
	for _, n := range templates.Files(nodes) {
		tpl, err := store.Load(n.Path)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", n.Path, err)
			problems++
			continue
		}
		sch, err := schema.MergeOverride(base, tpl.Override)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", n.Path, err)
			problems++
			continue
		}
		if err := schema.Validate(sch); err != nil {
			fmt.Fprintf(w, "%s: %v\n", n.Path, err)
			problems++
			continue
		}
		for _, key := range tpl.RequiredKeys {
			if _, ok := sch.RuleFor(key); ok {
				continue
			}
			if _, ok := engine.ResolveField(key, sch); !ok {
				fmt.Fprintf(w, "%s: warning: no field or rule for %s\n", n.Path, key)
			}
		}
		fmt.Fprintf(w, "%s: %d keys\n", n.Path, len(tpl.RequiredKeys))
	}
	return problems, nil
}

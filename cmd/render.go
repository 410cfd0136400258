package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kayz/scribe/internal/engine"
	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/session"
	"github.com/kayz/scribe/internal/templates"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	renderData string
	renderOut  string
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Fill a template from a data file, or by answering questions",
	Long: `Render fills a template. With --data the values come from a YAML or JSON
file whose keys are either nested objects or flat key paths such as
"user.base_name.first" or "property[0].address". Without --data the
questions are asked on the terminal.

The template is looked up in the templates folder first, then as a path.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVar(&renderData, "data", "", "YAML or JSON file with values")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Write the document to this file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer applyConfigLogging(cmd, cfg)()

	base, unavailable := loadBaseSchema(cfg.Templates.Schema)
	if unavailable != "" {
		return fmt.Errorf("base schema: %s", unavailable)
	}

	tpl, err := findTemplate(templates.NewStore(cfg.Templates.Dir), args[0])
	if err != nil {
		return err
	}

	var doc string
	if renderData != "" {
		doc, err = renderFromFile(base, tpl, renderData)
	} else {
		doc, err = interview(cmd.Context(), base, tpl, cmd.InOrStdin(), cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	if renderOut != "" {
		return os.WriteFile(renderOut, []byte(doc), 0644)
	}
	fmt.Fprintln(cmd.OutOrStdout(), doc)
	return nil
}

// findTemplate loads name from the store, falling back to a file path.
func findTemplate(store *templates.Store, name string) (*templates.Template, error) {
	tpl, err := store.Load(name)
	if err == nil {
		return tpl, nil
	}
	if _, statErr := os.Stat(name); statErr != nil {
		return nil, err
	}
	abs, absErr := filepath.Abs(name)
	if absErr != nil {
		return nil, err
	}
	return templates.NewStore(filepath.Dir(abs)).Load(filepath.Base(abs))
}

func renderFromFile(base *schema.Schema, tpl *templates.Template, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read data: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return "", fmt.Errorf("failed to parse data %s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	keypath.SortKeys(keys)

	data := map[string]any{}
	for _, k := range keys {
		if strings.ContainsAny(k, ".[") {
			if err := keypath.SetKey(data, k, values[k]); err != nil {
				return "", fmt.Errorf("bad key %s: %w", k, err)
			}
			continue
		}
		data[k] = values[k]
	}

	sch, err := schema.MergeOverride(base, tpl.Override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return engine.RenderData(tpl.Text, data, sch), nil
}

// interview asks the template's questions on in and out.
func interview(ctx context.Context, base *schema.Schema, tpl *templates.Template, in io.Reader, out io.Writer) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	const key = "cli"
	eng := engine.New(session.NewMemoryStore(), base)
	turn, err := eng.StartSession(ctx, key, engine.StartRequest{
		TemplatePath: tpl.Path,
		TemplateText: tpl.Text,
		RequiredKeys: tpl.RequiredKeys,
		Override:     tpl.Override,
	})
	if err != nil {
		return "", err
	}
	for _, w := range turn.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}

	scanner := bufio.NewScanner(in)
	for !turn.Done {
		if turn.Rejection != "" {
			fmt.Fprintln(out, turn.Rejection)
		}
		fmt.Fprintln(out, formatPrompt(turn.Question))
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("input ended before %s was answered", turn.Question.Key)
		}
		turn, err = eng.SubmitAnswer(ctx, key, scanner.Text())
		if err != nil {
			return "", err
		}
	}
	return turn.Document, nil
}

func formatPrompt(q *engine.Question) string {
	text := q.Prompt
	if len(q.Hint.Options) > 0 {
		text += " [" + strings.Join(q.Hint.Options, "/") + "]"
	}
	if q.Hint.Optional {
		text += " (" + engine.SkipToken + " to skip)"
	}
	return text
}

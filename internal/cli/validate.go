package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"harmonycore/internal/catalogue"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/transform"
)

// ValidationResult is the validate command's report.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Source   string    `json:"source"`
	Version  string    `json:"version,omitempty"`
	Rules    int       `json:"rules,omitempty"`
	Problems []Problem `json:"problems,omitempty"`
}

// Problem is one catalogue error.
type Problem struct {
	Kind    string `json:"kind"`
	Index   int    `json:"index"`
	Entity  string `json:"entity,omitempty"`
	Message string `json:"message"`
}

// NewValidateCommand checks a catalogue without running anything.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalogue]",
		Short: "Check a mapping catalogue against the warehouse schema",
		Long: `Validate compiles a YAML, JSON or CUE catalogue and reports every
problem: malformed patterns, unknown transforms, tables or columns, and
rules that cannot fill the required columns of their table. Without an
argument the built-in catalogue is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, cmd, path)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	res := ValidationResult{Source: path}
	if path == "" {
		res.Source = "built-in"
	}
	rules, err := loadRules(path, entitymodel.Default(), transform.NewRegistry())
	if err != nil {
		if !catalogue.IsCatalogueError(err) {
			return WrapExitError(ExitCommandError, "read catalogue", err)
		}
		for _, ce := range catalogue.Problems(err) {
			res.Problems = append(res.Problems, Problem{Kind: string(ce.Kind), Index: ce.Index, Entity: ce.Entity, Message: ce.Message})
		}
	} else {
		res.Valid, res.Version, res.Rules = true, rules.Version(), rules.Len()
	}

	if p.format == "json" {
		if err := p.json(res); err != nil {
			return err
		}
	} else if res.Valid {
		fmt.Fprintf(p.w, "%s: ok (%d rules, version %q)\n", res.Source, res.Rules, res.Version)
	} else {
		rows := make([][]any, 0, len(res.Problems))
		for _, pr := range res.Problems {
			rows = append(rows, []any{pr.Index, pr.Entity, pr.Kind, pr.Message})
		}
		if err := p.table("RULE\tENTITY\tKIND\tMESSAGE", rows); err != nil {
			return err
		}
	}
	if !res.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("catalogue has %d problem(s)", len(res.Problems)))
	}
	return nil
}

func loadRules(path string, schema *entitymodel.Schema, registry *transform.Registry) (*catalogue.RuleSet, error) {
	if path == "" {
		return catalogue.LoadDefault(schema, registry)
	}
	return catalogue.Load(path, schema, registry)
}

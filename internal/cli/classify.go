package cli

import (
	"github.com/spf13/cobra"

	"harmonycore/internal/classify"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/transform"
	"harmonycore/pkg/domain"
)

// MatchView is one classifier match as printed by the classify command.
type MatchView struct {
	Entity string            `json:"entity"`
	Table  string            `json:"table"`
	Span   int               `json:"span"`
	Seed   string            `json:"seed"`
	Groups map[string]string `json:"groups,omitempty"`
}

// NewClassifyCommand shows which rules recognise a value.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	var key, path string
	cmd := &cobra.Command{
		Use:   "classify <value>",
		Short: "Show the catalogue rules matching a raw value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(path, entitymodel.Default(), transform.NewRegistry())
			if err != nil {
				return WrapExitError(ExitFailure, "load catalogue", err)
			}
			matches := classify.Classify(domain.RawField{FieldKey: key, Value: args[0]}, rules)
			views := make([]MatchView, 0, len(matches))
			for _, m := range matches {
				views = append(views, MatchView{Entity: m.Rule.Entity, Table: m.Rule.Table.Name, Span: m.Span, Seed: m.Seed, Groups: m.Groups})
			}
			p := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			if p.format == "json" {
				return p.json(views)
			}
			if len(views) == 0 {
				_, err := cmd.OutOrStdout().Write([]byte("unrecognized\n"))
				return err
			}
			rows := make([][]any, 0, len(views))
			for _, v := range views {
				rows = append(rows, []any{v.Entity, v.Table, v.Span, v.Seed})
			}
			return p.table("ENTITY\tTABLE\tSPAN\tSEED", rows)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "field key the value arrived under")
	cmd.Flags().StringVar(&path, "catalogue", "", "catalogue file (default: built-in)")
	return cmd
}

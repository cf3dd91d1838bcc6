package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"harmonycore/internal/entitymodel"
	"harmonycore/internal/entitymodel/sqlbundle"
)

// NewSchemaCommand prints the warehouse DDL.
func NewSchemaCommand(_ *RootOptions) *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the warehouse DDL for a SQL dialect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				ddl string
				err error
			)
			switch dialect {
			case "sqlite":
				ddl, err = sqlbundle.SQLite(entitymodel.Default())
			case "postgres":
				ddl, err = sqlbundle.Postgres(entitymodel.Default())
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown dialect %q: must be sqlite or postgres", dialect))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "render schema", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), ddl)
			return err
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "sqlite", "SQL dialect (sqlite|postgres)")
	return cmd
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"harmonycore/internal/blob"
	"harmonycore/internal/config"
	"harmonycore/internal/etl"
)

// ArchiveView is the JSON form of an archived batch.
type ArchiveView struct {
	BatchID string      `json:"batch_id"`
	Objects []blob.Info `json:"objects"`
	Fields  int         `json:"fields"`
	Report  *etl.Report `json:"report"`
}

// NewArchiveCommand groups commands that read archived batches.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect batches archived to blob storage",
	}
	cmd.AddCommand(newArchiveShowCommand(rootOpts))
	return cmd
}

func newArchiveShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Print the objects and report archived for a batch",
		Long: `Show lists runs/<batch-id>/ in the configured blob store and prints the
archived report. The store is selected by HARMONYCORE_BLOB_* variables.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			store, err := openBlob(cmd.Context(), cfg.Blob)
			if err != nil {
				return WrapExitError(ExitCommandError, "open blob store", err)
			}
			run, err := etl.ReadArchive(cmd.Context(), store, args[0])
			if errors.Is(err, etl.ErrNotArchived) {
				return WrapExitError(ExitFailure, "archive", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "read archive", err)
			}

			p := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			if p.format == "json" {
				return p.json(ArchiveView{BatchID: run.BatchID, Objects: run.Objects, Fields: len(run.Fields), Report: run.Report})
			}
			rows := make([][]any, 0, len(run.Objects))
			for _, obj := range run.Objects {
				rows = append(rows, []any{obj.Key, obj.Size, obj.ContentType})
			}
			if err := p.table("KEY\tBYTES\tCONTENT TYPE", rows); err != nil {
				return err
			}
			fmt.Fprintln(p.w)
			return printReport(p, run.Report)
		},
	}
}

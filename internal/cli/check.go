package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucastaliberti/analyze-chrome-trace/internal/analyze"
	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

func newCheckCmd(cfg *model.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate an existing report",
		Long: "Run consistency checks on a report: header layout, row lengths, numeric cells " +
			"and unique task identities. The report is never modified.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Output == "" {
				return errors.New(`required flag(s) "output" not set`)
			}

			r, err := analyze.Check(cfg.Output)
			if err != nil {
				return err
			}

			long := 0
			for _, row := range r.Rows {
				if row.HasLongTasks {
					long++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d runs, %d tasks (%d with long tasks)\n",
				cfg.Output, r.Runs, len(r.Rows), long)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.Output, "output", "o", "", "Report file to validate")

	return cmd
}

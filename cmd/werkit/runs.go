package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/store"
)

func runsCmd() *cobra.Command {
	var (
		sf     storeFlags
		limit  int
		asJSON bool
		worst  int
	)
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List stored evaluation runs or show one of them",
		Long: `List saved evaluation runs, newest first.

With an id argument the full report of that run is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rs, release, err := sf.open(ctx)
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := rs.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, runs)
				}
				renderRuns(out, runs)
				return nil
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("run id %q is not a number", args[0])
			}
			run, report, err := rs.GetRun(ctx, id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, struct {
					Run    store.Run    `json:"run"`
					Report *eval.Report `json:"report"`
				}{run, report})
			}
			fmt.Fprintf(out, "run %d %s (%s)\n", run.ID, run.Label, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			items := report.Items
			if worst > 0 {
				items = report.Worst(worst)
			}
			renderReport(out, report, items)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&sf.dsn, "store", "", "PostgreSQL DSN of the run database")
	fl.StringVar(&sf.file, "runs-file", "", "JSON lines file of saved runs")
	fl.IntVarP(&limit, "limit", "n", 20, "number of runs to list (0 = all)")
	fl.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	fl.IntVar(&worst, "worst", 0, "show only the N items with the highest WER (0 = all)")
	return cmd
}

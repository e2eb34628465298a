package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/phonetic"
	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/pkg/wer"
)

type batchFlags struct {
	mergeLimit    int
	caseSensitive bool
	workers       int
	phonetic      bool
	threshold     float64
	asJSON        bool
	worst         int
	store         storeFlags
	label         string
}

func batchCmd() *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "batch <manifest>",
		Short: "Evaluate a manifest of reference/hypothesis pairs",
		Long: `Evaluate every item of a YAML or JSON manifest and print the corpus report.

A manifest lists items with an optional id, a reference and a hypothesis:

  items:
    - id: utt-001
      reference: the nonsmoker area
      hypothesis: the non smoker area

With --store the report is saved as a run in the given PostgreSQL database,
with --runs-file it is appended to a JSON lines file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], &f)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.mergeLimit, "merge-limit", "m", 0, "merges a concatenation match may use")
	fl.BoolVar(&f.caseSensitive, "case-sensitive", false, "compare tokens without case folding")
	fl.IntVarP(&f.workers, "workers", "w", 0, "items scored concurrently (0 = GOMAXPROCS)")
	fl.BoolVar(&f.phonetic, "phonetic", true, "flag substitutions that sound alike")
	fl.Float64Var(&f.threshold, "threshold", 0.85, "fuzzy similarity threshold for phonetic matches")
	fl.BoolVar(&f.asJSON, "json", false, "print the full report as JSON")
	fl.IntVar(&f.worst, "worst", 0, "show only the N items with the highest WER (0 = all)")
	fl.StringVar(&f.store.dsn, "store", "", "PostgreSQL DSN to save the run in")
	fl.StringVar(&f.store.file, "runs-file", "", "JSON lines file to append the run to")
	fl.StringVar(&f.label, "label", "", "label of the saved run")
	return cmd
}

func runBatch(cmd *cobra.Command, path string, f *batchFlags) error {
	if f.mergeLimit < 0 || f.mergeLimit > wer.MaxMergeLimit {
		return fmt.Errorf("--merge-limit %d is out of range [0, %d]", f.mergeLimit, wer.MaxMergeLimit)
	}
	if f.workers < 0 {
		return fmt.Errorf("--workers %d must not be negative", f.workers)
	}
	if f.phonetic && (f.threshold <= 0 || f.threshold > 1) {
		return fmt.Errorf("--threshold %v must be in (0, 1]", f.threshold)
	}
	if f.label != "" && !f.store.set() {
		return fmt.Errorf("--label requires --store or --runs-file")
	}

	m, err := eval.LoadManifest(path)
	if err != nil {
		return err
	}

	opts := []eval.Option{
		eval.WithMergeLimit(f.mergeLimit),
		eval.WithCaseSensitive(f.caseSensitive),
		eval.WithWorkers(f.workers),
	}
	if f.phonetic {
		opts = append(opts, eval.WithPhonetic(phonetic.New(phonetic.WithFuzzyThreshold(f.threshold))))
	}
	ev := eval.New(opts...)

	ctx := cmd.Context()
	report, err := ev.Run(ctx, m.Items)
	if err != nil {
		return err
	}

	if f.store.set() {
		id, err := saveRun(ctx, f, report)
		if err != nil {
			return err
		}
		slog.Info("run saved", "id", id, "label", f.label)
	}

	out := cmd.OutOrStdout()
	if f.asJSON {
		return writeJSON(out, report)
	}
	items := report.Items
	if f.worst > 0 {
		items = report.Worst(f.worst)
	}
	renderReport(out, report, items)
	return nil
}

func saveRun(ctx context.Context, f *batchFlags, report *eval.Report) (int64, error) {
	rs, release, err := f.store.open(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	run, err := rs.SaveRun(ctx, f.label, store.Settings{
		MergeLimit:    f.mergeLimit,
		CaseSensitive: f.caseSensitive,
		Phonetic:      f.phonetic,
	}, report)
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

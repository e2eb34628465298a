package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/pkg/wer"
)

// absent marks the missing side of an insertion or deletion.
const absent = "-"

var opColors = map[wer.Op]*color.Color{
	wer.OpMatch:      color.New(color.FgGreen),
	wer.OpSubstitute: color.New(color.FgYellow),
	wer.OpDelete:     color.New(color.FgRed),
	wer.OpInsert:     color.New(color.FgCyan),
	wer.OpMerge:      color.New(color.FgBlue),
}

var (
	diffDelete = color.New(color.FgRed)
	diffInsert = color.New(color.FgGreen)
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.DrawBorder = false
	return tw
}

func colorOp(op wer.Op) string {
	if c, ok := opColors[op]; ok {
		return c.Sprint(op.String())
	}
	return op.String()
}

// charDiff renders the character differences between a and b in word-diff
// notation: [-removed-] and {+added+}.
func charDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString(diffDelete.Sprint("[-" + d.Text + "-]"))
		case diffmatchpatch.DiffInsert:
			sb.WriteString(diffInsert.Sprint("{+" + d.Text + "+}"))
		}
	}
	return sb.String()
}

// renderAlignment writes one table row per aligned pair.
func renderAlignment(w io.Writer, pairs []wer.Pair) {
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Reference", "Hypothesis", "Op", "Diff"})
	for i, p := range pairs {
		left, right := absent, absent
		if p.HasLeft() {
			left = p.Left
		}
		if p.HasRight() {
			right = p.Right
		}
		var diff string
		if p.Op == wer.OpSubstitute {
			diff = charDiff(p.Left, p.Right)
		}
		tw.AppendRow(table.Row{i + 1, left, right, colorOp(p.Op), diff})
	}
	fmt.Fprintln(w, tw.Render())
}

// renderScore writes the distance, rate and operation counts of res.
func renderScore(w io.Writer, res wer.Result) {
	fmt.Fprintf(w, "distance  %d\n", res.Distance)
	fmt.Fprintf(w, "wer       %s\n", percent(res.WER))
	fmt.Fprintf(w, "tokens    %d reference, %d hypothesis\n", res.ReferenceTokens, res.HypothesisTokens)
	fmt.Fprintf(w, "ops       %d match, %d substitute, %d delete, %d insert, %d merge\n",
		res.Matches, res.Substitutions, res.Deletions, res.Insertions, res.Merges)
}

func percent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 2, 64) + "%"
}

// renderReport writes the per-item table of report followed by the corpus
// totals. items limits the rows shown; the totals always cover the whole
// report.
func renderReport(w io.Writer, report *eval.Report, items []eval.ItemResult) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Ref", "Hyp", "Dist", "WER", "Sub", "Del", "Ins", "Merge", "Phon"})
	for _, it := range items {
		tw.AppendRow(table.Row{
			it.ID, it.ReferenceTokens, it.HypothesisTokens, it.Distance, percent(it.WER),
			it.Substitutions, it.Deletions, it.Insertions, it.Merges, it.PhoneticSubstitutions,
		})
	}
	t := report.Totals
	tw.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d items", len(report.Items)),
		t.ReferenceTokens, t.HypothesisTokens, t.Distance, percent(report.CorpusWER),
		t.Substitutions, t.Deletions, t.Insertions, t.Merges, t.PhoneticSubstitutions,
	})
	tw.SetColumnConfigs(numericColumns(2, 10))
	fmt.Fprintln(w, tw.Render())

	fmt.Fprintf(w, "corpus wer  %s\n", percent(report.CorpusWER))
	fmt.Fprintf(w, "mean wer    %s\n", percent(report.MeanWER))
}

// renderRuns writes one row per stored run.
func renderRuns(w io.Writer, runs []store.Run) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Label", "Created", "Items", "Corpus WER", "Mean WER", "Merge Limit"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.ID, r.Label, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Items,
			percent(r.CorpusWER), percent(r.MeanWER), r.Settings.MergeLimit,
		})
	}
	tw.SetColumnConfigs(numericColumns(4, 7))
	fmt.Fprintln(w, tw.Render())
}

// numericColumns right-aligns the 1-based columns from through to.
func numericColumns(from, to int) []table.ColumnConfig {
	cfgs := make([]table.ColumnConfig, 0, to-from+1)
	for n := from; n <= to; n++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	return cfgs
}

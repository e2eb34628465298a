package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/werkit/pkg/wer"
)

// compareFlags are the comparison settings shared by score and align.
type compareFlags struct {
	mergeLimit    int
	caseSensitive bool
	asJSON        bool
}

func (f *compareFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.mergeLimit, "merge-limit", "m", 0, "merges a concatenation match may use")
	cmd.Flags().BoolVar(&f.caseSensitive, "case-sensitive", false, "compare tokens without case folding")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON instead of text")
}

func (f *compareFlags) options() ([]wer.Option, error) {
	if f.mergeLimit < 0 || f.mergeLimit > wer.MaxMergeLimit {
		return nil, fmt.Errorf("--merge-limit %d is out of range [0, %d]", f.mergeLimit, wer.MaxMergeLimit)
	}
	return []wer.Option{wer.WithMergeLimit(f.mergeLimit), wer.WithCaseSensitive(f.caseSensitive)}, nil
}

// readSide returns the text of a positional argument. "@path" reads the
// file at path and "-" reads stdin.
func readSide(arg string, stdin io.Reader) (wer.Text, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return wer.Text(b), nil
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", fmt.Errorf("read %q: %w", arg[1:], err)
		}
		return wer.Text(b), nil
	}
	return wer.Text(arg), nil
}

// readPair reads the reference and hypothesis arguments. At most one of
// them may come from stdin.
func readPair(cmd *cobra.Command, args []string) (ref, hyp wer.Text, err error) {
	if args[0] == "-" && args[1] == "-" {
		return "", "", fmt.Errorf("only one side can be read from stdin")
	}
	if ref, err = readSide(args[0], cmd.InOrStdin()); err != nil {
		return "", "", err
	}
	if hyp, err = readSide(args[1], cmd.InOrStdin()); err != nil {
		return "", "", err
	}
	return ref, hyp, nil
}

// alignOutput matches the response of the align endpoint.
type alignOutput struct {
	Pairs    []wer.Pair `json:"pairs"`
	Ops      []wer.Op   `json:"ops"`
	Distance int        `json:"distance"`
	WER      float64    `json:"wer"`
}

func newAlignOutput(res wer.Result) alignOutput {
	out := alignOutput{
		Pairs:    res.Alignment,
		Ops:      make([]wer.Op, len(res.Alignment)),
		Distance: res.Distance,
		WER:      res.WER,
	}
	if out.Pairs == nil {
		out.Pairs = []wer.Pair{}
	}
	for i, p := range res.Alignment {
		out.Ops[i] = p.Op
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scoreCmd() *cobra.Command {
	var f compareFlags
	cmd := &cobra.Command{
		Use:   "score <reference> <hypothesis>",
		Short: "Print the token edit distance and word error rate",
		Long: `Print the token edit distance and word error rate of a hypothesis.

Arguments are literal text, @path to read a file, or - for stdin.

Examples:
  werkit score "I want" "I do want"
  werkit score -m 2 @ref.txt @hyp.txt`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			ref, hyp, err := readPair(cmd, args)
			if err != nil {
				return err
			}
			res := wer.Evaluate(ref, hyp, opts...)

			out := cmd.OutOrStdout()
			if f.asJSON {
				res.Alignment = nil
				return writeJSON(out, res)
			}
			renderScore(out, res)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func alignCmd() *cobra.Command {
	var f compareFlags
	cmd := &cobra.Command{
		Use:   "align <reference> <hypothesis>",
		Short: "Show the token alignment of a hypothesis against its reference",
		Long: `Show the token alignment of a hypothesis against its reference.

Substitutions include a character diff of the two sides.

Examples:
  werkit align "the nonsmoker area" "the non smoker air" -m 1
  werkit align --json @ref.txt @hyp.txt`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			ref, hyp, err := readPair(cmd, args)
			if err != nil {
				return err
			}
			res := wer.Evaluate(ref, hyp, opts...)

			out := cmd.OutOrStdout()
			if f.asJSON {
				return writeJSON(out, newAlignOutput(res))
			}
			renderAlignment(out, res.Alignment)
			renderScore(out, res)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

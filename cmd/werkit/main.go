// Command werkit scores speech recognition output against reference
// transcripts, tolerating words that were split or joined.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MrWong99/werkit/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "werkit: %v\n", err)
		return 1
	}
	return 0
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	logLevel string
	noColor  bool
	level    *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:   "werkit",
		Short: "Word error rate scoring that tolerates split and joined words",
		Long: `werkit compares hypothesis transcripts with references at the token level.

A concatenation match lets "non smoker" align with "nonsmoker" at no cost,
so transcripts that only differ in word boundaries are not penalised.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			lvl := config.LogLevel(f.logLevel)
			if !lvl.IsValid() {
				return fmt.Errorf("invalid --log-level %q", f.logLevel)
			}
			f.level.Set(lvl.Level())
			slog.SetDefault(newLogger(f.level))
			if f.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&f.logLevel, "log-level", string(config.LogInfo), "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&f.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		scoreCmd(),
		alignCmd(),
		batchCmd(),
		runsCmd(),
		serveCmd(f),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "werkit %s\n", version)
		},
	}
}

// newLogger returns a text logger on stderr whose level follows lv.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevinwang15/yamldedup"
	"github.com/kevinwang15/yamldedup/internal/runner"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type flags struct {
	files      []string
	common     string
	references []string
	dryRun     bool
	backup     bool
	noLog      bool
	verbose    bool
	pruneBlank bool
	noColor    bool
	report     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "yamldedup [flags] [FILE...]",
		Short: "Extract common YAML values or remove values already defined by reference files",
		Long: `yamldedup deduplicates YAML configuration files such as per-environment
Helm values.

With --common, every key/value path shared by all input files is moved into
the common file and removed from each input. With --reference, every path a
reference file defines with the same value is removed from each input;
values that differ from the reference are kept.

Examples:
  yamldedup --common values.yaml values-dev.yaml values-test.yaml values-prod.yaml
  yamldedup --reference values.yaml --dry-run values-dev.yaml values-prod.yaml`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.files = append(f.files, args...)
			log := newLogger(f, stderr)
			defer func() { _ = log.Sync() }()

			report := runner.ReportFormat(f.report)
			if !cmd.Flags().Changed("report") {
				report = runner.ReportNone
				if f.dryRun {
					report = runner.ReportText
				}
			}
			cfg := runner.Config{
				Files:      f.files,
				Common:     f.common,
				References: f.references,
				DryRun:     f.dryRun,
				Backup:     f.backup,
				PruneBlank: f.pruneBlank,
				Color:      !f.noColor && isTerminal(stdout),
				Report:     report,
			}
			if err := runner.New(cfg, log, stdout).Run(); err != nil {
				log.Error("a critical error occurred", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", yamldedup.ErrInvalidInput, err)
	})

	fl := cmd.Flags()
	fl.StringSliceVar(&f.files, "files", nil, "YAML files to process (also accepted as arguments)")
	fl.StringVar(&f.common, "common", "", "file to store common values in; mutually exclusive with --reference")
	fl.StringSliceVar(&f.references, "reference", nil, "reference file(s) whose values are removed from the files; mutually exclusive with --common")
	fl.BoolVar(&f.dryRun, "dry-run", false, "show changes without modifying files")
	fl.BoolVar(&f.backup, "backup", false, "back up files before changing them")
	fl.BoolVar(&f.noLog, "no-log", false, "disable logging")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	fl.BoolVar(&f.pruneBlank, "prune-blank", false, "also drop top-level keys left null, empty or {}")
	fl.BoolVar(&f.noColor, "no-color", false, "never colorize diffs")
	fl.StringVar(&f.report, "report", string(runner.ReportText), "per-file report: text, json or none (default text with --dry-run, none otherwise)")
	return cmd
}

func newLogger(f flags, stderr io.Writer) *zap.Logger {
	if f.noLog {
		return zap.NewNop()
	}
	level := zapcore.InfoLevel
	if f.verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(stderr), level)
	return zap.New(core).Named("yamldedup")
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, yamldedup.ErrInvalidInput):
		return exitUsage
	default:
		return exitError
	}
}

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, yamldedup.ErrInvalidInput) {
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		}
	}
	os.Exit(exitCode(err))
}

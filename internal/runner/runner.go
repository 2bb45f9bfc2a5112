// Package runner drives one deduplication batch: load every file, compute
// the residuals, then write the results.
package runner

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kevinwang15/yamldedup"
	"github.com/kevinwang15/yamldedup/internal/docio"
)

// ReportFormat selects what Run prints about each processed file.
type ReportFormat string

const (
	ReportNone ReportFormat = "none"
	ReportText ReportFormat = "text"
	ReportJSON ReportFormat = "json"
)

// Config is one batch invocation.
type Config struct {
	Files      []string // documents to deduplicate
	Common     string   // extraction mode: where the common document goes
	References []string // subtraction mode: documents to subtract

	DryRun     bool
	Backup     bool
	PruneBlank bool
	Color      bool
	Report     ReportFormat
}

// Validate checks mode selection and arity.
func (c Config) Validate() error {
	switch {
	case c.Common != "" && len(c.References) > 0:
		return fmt.Errorf("yamldedup: %w: --common and --reference are mutually exclusive", yamldedup.ErrInvalidInput)
	case c.Common == "" && len(c.References) == 0:
		return fmt.Errorf("yamldedup: %w: one of --common or --reference is required", yamldedup.ErrInvalidInput)
	case len(c.Files) == 0:
		return fmt.Errorf("yamldedup: %w: no files given", yamldedup.ErrInvalidInput)
	case c.Common != "" && len(c.Files) < 2:
		return fmt.Errorf("yamldedup: %w: extracting common values needs at least 2 files", yamldedup.ErrInvalidInput)
	}
	seen := map[string]bool{}
	for _, f := range c.Files {
		if seen[f] {
			return fmt.Errorf("yamldedup: %w: %s given twice", yamldedup.ErrInvalidInput, f)
		}
		seen[f] = true
	}
	if seen[c.Common] {
		return fmt.Errorf("yamldedup: %w: common file %s is also an input", yamldedup.ErrInvalidInput, c.Common)
	}
	for _, r := range c.References {
		if seen[r] {
			return fmt.Errorf("yamldedup: %w: reference %s is also an input", yamldedup.ErrInvalidInput, r)
		}
	}
	switch c.Report {
	case "", ReportNone, ReportText, ReportJSON:
	default:
		return fmt.Errorf("yamldedup: %w: unknown report format %q", yamldedup.ErrInvalidInput, c.Report)
	}
	return nil
}

// Runner executes a Config.
type Runner struct {
	cfg    Config
	log    *zap.Logger
	out    io.Writer
	source *docio.Source
	sink   *docio.Sink
}

// New returns a Runner printing reports and dry-run diffs to out.
func New(cfg Config, log *zap.Logger, out io.Writer) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	sinkOpts := docio.SinkOptions{
		DryRun: cfg.DryRun,
		Backup: cfg.Backup,
		Color:  cfg.Color,
	}
	if cfg.DryRun {
		sinkOpts.Diff = out
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		out:    out,
		source: docio.NewSource(log),
		sink:   docio.NewSink(sinkOpts, log),
	}
}

// Run loads every input, computes all results, and only then writes them.
// A load or parse failure therefore leaves every file untouched.
func (r *Runner) Run() error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	docs, err := r.source.LoadAll(r.cfg.Files)
	if err != nil {
		return err
	}
	var opts []yamldedup.Option
	if r.cfg.PruneBlank {
		opts = append(opts, yamldedup.WithPruneBlank())
	}

	var (
		outs      []docio.Output
		residuals []*yaml.Node
	)
	if r.cfg.Common != "" {
		common, res, err := yamldedup.ExtractCommon(nodes(docs), opts...)
		if err != nil {
			return err
		}
		r.log.Info("common definitions determined", zap.Int("keys", len(common.Content[0].Content)/2))
		data, err := yamldedup.MarshalNode(common, docs[0].Indent)
		if err != nil {
			return yamldedup.WithName(err, r.cfg.Common)
		}
		// The common file goes first so shared values are persisted
		// before they disappear from the inputs.
		outs = append(outs, docio.Output{Name: r.cfg.Common, Data: data})
		residuals = res
	} else {
		refs, err := r.source.LoadAll(r.cfg.References)
		if err != nil {
			return err
		}
		r.log.Info("merged reference definitions", zap.Int("references", len(refs)))
		residuals, err = yamldedup.SubtractReference(nodes(docs), nodes(refs), opts...)
		if err != nil {
			return err
		}
	}

	for i, doc := range docs {
		data, err := yamldedup.Render(doc, residuals[i])
		if err != nil {
			return yamldedup.WithName(err, doc.Name)
		}
		removed := yamldedup.RemovedPaths(doc.Node, residuals[i])
		r.log.Debug("residual computed", zap.String("file", doc.Name), zap.Int("removed", len(removed)))
		if err := r.report(doc, residuals[i], removed); err != nil {
			return err
		}
		outs = append(outs, docio.Output{Name: doc.Name, Data: data})
	}

	results, err := r.sink.WriteAll(outs)
	if err != nil {
		return err
	}
	changed := 0
	for _, res := range results {
		if res.Changed {
			changed++
		}
	}
	r.log.Info("processing completed", zap.Int("files", len(results)), zap.Int("changed", changed), zap.Bool("dry_run", r.cfg.DryRun))
	return nil
}

type jsonReport struct {
	File  string          `json:"file"`
	Patch json.RawMessage `json:"patch"`
}

func (r *Runner) report(doc *yamldedup.Document, residual *yaml.Node, removed []yamldedup.Path) error {
	switch r.cfg.Report {
	case ReportText:
		fmt.Fprintf(r.out, "%s: %d path(s) removed\n", doc.Name, len(removed))
		for _, p := range removed {
			fmt.Fprintf(r.out, "  - %s\n", p)
		}
	case ReportJSON:
		patch, err := yamldedup.MergePatch(doc.Node, residual)
		if err != nil {
			return yamldedup.WithName(err, doc.Name)
		}
		line, err := json.Marshal(jsonReport{File: doc.Name, Patch: patch})
		if err != nil {
			return fmt.Errorf("yamldedup: failed to encode report for %s: %w", doc.Name, err)
		}
		fmt.Fprintf(r.out, "%s\n", line)
	}
	return nil
}

func nodes(docs []*yamldedup.Document) []*yaml.Node {
	out := make([]*yaml.Node, len(docs))
	for i, d := range docs {
		out[i] = d.Node
	}
	return out
}

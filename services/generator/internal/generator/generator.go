// Package generator runs a batch of dataset IDs through retrieval, template
// population, NEMO conversion and summary storage.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/importer"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/metrics"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/models"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/nemo"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/retrieval"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/tagtmpl"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/utils"
)

// Store is the part of db.SummaryStore the generator writes through.
type Store interface {
	utils.PlatformResolver
	InsertSummaries(ctx context.Context, recs []models.SummaryRecord) error
	ClearSummaries(ctx context.Context) error
}

// Converter runs the external NEMO conversion.
type Converter interface {
	Run(ctx context.Context, inv nemo.Invocation) (string, error)
}

type Options struct {
	Source    importer.DatasetSource
	Store     Store
	Converter Converter
	TempDir   string
	OutputDir string
	// DryRun populates templates but skips NEMO and all database writes.
	DryRun   bool
	Logger   *log.Logger
	Metrics  *metrics.Recorder
	Progress func(msg string)
}

// Generator processes IDs for one source. It is not safe for concurrent use.
type Generator struct {
	src       importer.DatasetSource
	store     Store
	converter Converter
	tempDir   string
	outputDir string
	dryRun    bool
	logger    *log.Logger
	metrics   *metrics.Recorder
	progress  func(string)
}

// Report lists the outcome of each ID in processing order.
type Report struct {
	Succeeded []string
	Failed    []string
	Errors    map[string]error
}

func (r *Report) fail(id string, err error) {
	r.Failed = append(r.Failed, id)
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[id] = err
}

// Summary is the one line outcome shown at the end of a batch.
func (r Report) Summary() string {
	return fmt.Sprintf("Processing complete. %d succeeded, %d failed.", len(r.Succeeded), len(r.Failed))
}

// New validates opts.
func New(opts Options) (*Generator, error) {
	if opts.Source == nil {
		return nil, errors.New("generator: source required")
	}
	if !opts.DryRun && (opts.Store == nil || opts.Converter == nil) {
		return nil, errors.New("generator: store and converter required")
	}
	g := &Generator{
		src:       opts.Source,
		store:     opts.Store,
		converter: opts.Converter,
		tempDir:   opts.TempDir,
		outputDir: opts.OutputDir,
		dryRun:    opts.DryRun,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		progress:  opts.Progress,
	}
	if g.tempDir == "" {
		g.tempDir = os.TempDir()
	}
	if g.outputDir == "" {
		g.outputDir = "."
	}
	// NEMO runs in its own working directory.
	for _, dir := range []*string{&g.tempDir, &g.outputDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", *dir, err)
		}
		*dir = abs
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	if g.progress == nil {
		g.progress = func(string) {}
	}
	return g, nil
}

// ClearSummaries empties the summary table before a batch.
func (g *Generator) ClearSummaries(ctx context.Context) error {
	if g.dryRun {
		g.logger.Printf("dry-run: skipping cdi_summary clear")
		return nil
	}
	if err := g.store.ClearSummaries(ctx); err != nil {
		return err
	}
	g.logger.Printf("cleared cdi_summary")
	return nil
}

// Run processes ids in order. Failures of a single ID are recorded in the
// report; only a NEMO process failure or cancellation stops the batch.
func (g *Generator) Run(ctx context.Context, ids []string) (Report, error) {
	report := Report{}

	for _, dir := range []string{g.tempDir, g.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return report, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	for i, id := range ids {
		g.progress(fmt.Sprintf("Processing %s %s (%d of %d)", g.src.IDDescriptor(), id, i+1, len(ids)))

		err := g.processDataset(ctx, id)
		if err == nil {
			report.Succeeded = append(report.Succeeded, id)
			g.metrics.Dataset(metrics.OutcomeSucceeded)
			continue
		}

		report.fail(id, err)
		if errors.Is(err, retrieval.ErrDatasetNotFound) {
			g.metrics.Dataset(metrics.OutcomeNotFound)
		} else {
			g.metrics.Dataset(metrics.OutcomeFailed)
		}
		g.logger.Printf("dataset %s failed: %v", id, err)

		var perr *nemo.ProcessError
		if errors.As(err, &perr) {
			g.logProcessed(report)
			return report, fmt.Errorf("aborting batch after %s: %w", id, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			g.logProcessed(report)
			return report, ctxErr
		}
	}

	g.progress(report.Summary())
	g.logProcessed(report)
	return report, nil
}

func (g *Generator) logProcessed(r Report) {
	var b strings.Builder
	b.WriteString("SUCCEEDED IDS:\n")
	for _, id := range r.Succeeded {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	b.WriteString("FAILED IDS:\n")
	for _, id := range r.Failed {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	g.logger.Print(b.String())
}

// DataPath is where the reformatted data of id is written for NEMO.
func (g *Generator) DataPath(id string) string {
	return filepath.Join(g.tempDir, id+"_data.txt")
}

func (g *Generator) processDataset(ctx context.Context, id string) error {
	if err := g.src.Retrieve(ctx, id); err != nil {
		return err
	}

	modelsToRun, err := g.src.Models()
	if err != nil {
		return err
	}
	localID, err := g.src.LocalCDIID()
	if err != nil {
		return fmt.Errorf("local CDI ID: %w", err)
	}

	dataPath := g.DataPath(id)
	if err := os.WriteFile(dataPath, g.src.Data(), 0o644); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}

	records := make([]models.SummaryRecord, 0, len(modelsToRun))
	for i, model := range modelsToRun {
		step := fmt.Sprintf("(model %d of %d)", i+1, len(modelsToRun))

		g.progress("Generating NEMO model " + step)
		modelPath, err := g.populate(id, model)
		if err != nil {
			return err
		}

		if g.dryRun {
			g.logger.Printf("dry-run: would run NEMO for %s with %s", id, modelPath)
			continue
		}

		g.progress("Running NEMO " + step)
		inv := nemo.Invocation{
			DataPath:    dataPath,
			ModelPath:   modelPath,
			OutputPath:  model.OutputPath(g.outputDir, localID),
			SummaryPath: model.SummaryPath(g.outputDir, localID),
			Format:      model.Format,
		}
		if _, err := g.converter.Run(ctx, inv); err != nil {
			return err
		}

		g.progress("Building CDI summary " + step)
		rec, err := utils.BuildSummary(ctx, g.src, g.store, inv.OutputPath)
		if err != nil {
			return fmt.Errorf("build summary: %w", err)
		}
		records = append(records, rec)
	}

	if g.dryRun {
		return nil
	}
	g.progress("Adding CDI summary data to database")
	if err := g.store.InsertSummaries(ctx, records); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

// populate fills the model template for id and writes it to the temp dir.
func (g *Generator) populate(id string, model nemo.Model) (string, error) {
	template, err := os.ReadFile(model.TemplatePath)
	if err != nil {
		return "", fmt.Errorf("read model template: %w", err)
	}
	populated, err := tagtmpl.Populate(string(template), g.src.ResolveTag)
	if err != nil {
		return "", fmt.Errorf("populate %s: %w", model.Name(), err)
	}
	path := model.PopulatedTemplatePath(g.tempDir, id)
	if err := os.WriteFile(path, []byte(populated), 0o644); err != nil {
		return "", fmt.Errorf("write populated model: %w", err)
	}
	return path, nil
}

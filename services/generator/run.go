package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/squaregoldfish/cdi-generator/internal/csr"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/cache"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/config"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/db"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/generator"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/importer"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/metrics"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/nemo"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/retrieval"
)

type runOptions struct {
	importer string
	manifest string
	idsFile  string
	clear    bool
	ids      []string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [ID...]",
		Short: "Generate CDI records for a batch of dataset IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ids = args
			return runBatch(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.importer, "importer", "", "Importer name (see `cdigen importers`)")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "YAML batch manifest")
	cmd.Flags().StringVar(&opts.idsFile, "ids-file", "", "File with one dataset ID per line")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Empty cdi_summary before processing")

	return cmd
}

// resolveBatch merges the manifest, ID file and command line into one batch.
func resolveBatch(opts runOptions) (name string, ids []string, clearSummaries bool, err error) {
	name, clearSummaries = opts.importer, opts.clear
	if opts.manifest != "" {
		m, err := config.LoadManifest(opts.manifest)
		if err != nil {
			return "", nil, false, err
		}
		if name == "" {
			name = m.Importer
		}
		ids = append(ids, m.IDs...)
		clearSummaries = clearSummaries || m.ClearSummaries
	}
	if opts.idsFile != "" {
		f, err := os.Open(opts.idsFile)
		if err != nil {
			return "", nil, false, fmt.Errorf("open ids file: %w", err)
		}
		fileIDs, err := config.ReadIDs(f)
		_ = f.Close()
		if err != nil {
			return "", nil, false, err
		}
		ids = append(ids, fileIDs...)
	}
	ids = append(ids, opts.ids...)

	if name == "" {
		return "", nil, false, errors.New("no importer selected (use --importer or a manifest)")
	}
	if len(ids) == 0 && !clearSummaries {
		return "", nil, false, errors.New("no dataset IDs given")
	}
	return name, ids, clearSummaries, nil
}

func runBatch(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	runID := uuid.New()
	logger := log.New(os.Stderr, "["+runID.String()[:8]+"] ", log.LstdFlags)

	name, ids, clearSummaries, err := resolveBatch(opts)
	if err != nil {
		return err
	}
	registry := importer.NewRegistry()
	if _, ok := registry.IDFormat(name); !ok || !cfg.ImporterEnabled(name) {
		return fmt.Errorf("importer %q is not available (registered: %v, enabled: %v)", name, registry.Names(), cfg.Importers)
	}
	logger.Printf("run %s: importer=%s ids=%d dry-run=%v", runID, name, len(ids), cfg.DryRun)

	client := &http.Client{Timeout: cfg.RequestTimeout}

	table, err := csr.Fetch(ctx, client, cfg.CSRURL)
	if err != nil {
		return err
	}
	logger.Printf("loaded CSR reference table (%d platforms)", table.Platforms())

	var store generator.Store
	if cfg.DryRun {
		logger.Printf("dry-run: not connecting to database")
	} else {
		s, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	payloads, err := cache.Open(ctx, cache.Options{
		Driver: cache.Driver(cfg.CacheDriver),
		Dir:    cfg.CacheDir,
		S3: cache.S3Config{
			Bucket:    cfg.CacheS3Bucket,
			Region:    cfg.CacheS3Region,
			Endpoint:  cfg.CacheS3Endpoint,
			Prefix:    cfg.CacheS3Prefix,
			PathStyle: cfg.CacheS3PathStyle,
		},
	})
	if err != nil {
		return err
	}
	logger.Printf("payload cache: %s", payloads.Driver())

	recorder := metrics.New()
	fetcher := &pangaea.Client{
		Data:  pangaea.NewDataClient(client, ""),
		Vista: pangaea.NewVistaClient(pangaea.VistaOptions{HTTPClient: client, Logger: logger}),
	}
	pipeline, err := retrieval.New(retrieval.Options{
		Fetcher:  fetcher,
		Cache:    payloads,
		Config:   retrieval.Config{NetworkRetries: cfg.NetworkRetries, RetryWait: cfg.RetryWait},
		Progress: func(msg string) { logger.Print(msg) },
		Logger:   logger,
		Metrics:  recorder,
	})
	if err != nil {
		return err
	}

	src, err := registry.New(name, importer.Deps{
		Pipeline:     pipeline,
		CSR:          table,
		TemplatesDir: cfg.TemplatesDir,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	gen, err := generator.New(generator.Options{
		Source:    src,
		Store:     store,
		Converter: &nemo.Runner{Command: cfg.NemoCommand, WorkDir: cfg.NemoWorkingDir, Logger: logger},
		TempDir:   cfg.TempDir,
		OutputDir: cfg.OutputDir,
		DryRun:    cfg.DryRun,
		Logger:    logger,
		Metrics:   recorder,
		Progress:  func(msg string) { logger.Print(msg) },
	})
	if err != nil {
		return err
	}

	if clearSummaries {
		if err := gen.ClearSummaries(ctx); err != nil {
			return err
		}
	}

	report, runErr := gen.Run(ctx, ids)
	logger.Print(report.Summary())
	for _, id := range report.Failed {
		logger.Printf("failed %s: %v", id, report.Errors[id])
	}

	if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.Printf("write metrics textfile: %v", err)
	}
	return runErr
}

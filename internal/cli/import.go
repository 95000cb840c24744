package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/importer"
	"catalog-importer/internal/locks"
	"catalog-importer/internal/metrics"
	"catalog-importer/internal/records"
	"catalog-importer/internal/storage/memory"
)

type importOptions struct {
	format     string
	dryRun     bool
	dump       bool
	workers    int
	enrichURL  string
	noEnrich   bool
	noProgress bool
	runID      string
}

func newImportCommand(a *app) *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a product file",
		Long: `Import reads a JSON array, JSON lines, CSV or YAML file of product records.
Every record is validated, optionally enriched and upserted. Records that fail
any stage are written to the failure log; the run always completes unless the
input, the configuration or the store connection is unusable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return a.runImport(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "", "input format: json, ndjson, csv, yaml (default: from extension)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "process into an in-memory store; nothing durable is written")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "with --dry-run, print the resulting products and failures as JSON")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "records processed concurrently (overrides IMPORT_WORKERS)")
	cmd.Flags().StringVar(&opts.enrichURL, "enrich-url", "", "enrichment endpoint (overrides ENRICH_URL)")
	cmd.Flags().BoolVar(&opts.noEnrich, "no-enrich", false, "skip enrichment even when ENRICH_URL is set")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not render the progress line")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "run identifier (default: random UUID)")

	return cmd
}

func (a *app) runImport(ctx context.Context, path string, opts *importOptions) error {
	// flag overrides apply to this run only
	overridden := *a.cfg
	cfg := &overridden
	if opts.workers > 0 {
		cfg.ImportWorkers = opts.workers
	}
	if opts.enrichURL != "" {
		cfg.EnrichURL = opts.enrichURL
	}
	if opts.noEnrich {
		cfg.EnrichURL = ""
	}
	if opts.dryRun {
		cfg.StoreType = memory.StoreType
	}
	if opts.dump && !opts.dryRun {
		return errors.ConfigError("--dump requires --dry-run")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format := records.Format("")
	if opts.format != "" {
		f, err := records.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		format = f
	}

	recs, err := records.LoadFile(path, format)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	locker, err := newLocker(store, a.logger)
	if err != nil {
		return err
	}
	lock, err := locker.Acquire(ctx, "import")
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Failed to release run lock", logging.Err(err))
		}
	}()

	collectors := metrics.New()
	limiter, err := newLimiter(cfg, collectors)
	if err != nil {
		return err
	}
	enricher, err := newEnricher(cfg, limiter, collectors, a.logger)
	if err != nil {
		return err
	}

	sinks := importer.MultiSink{importer.NewLogSink(a.logger, 100)}
	if !opts.noProgress {
		sinks = append(sinks, importer.NewConsoleSink(a.errOut, 200*time.Millisecond))
	}

	pipelineOpts := []importer.Option{
		importer.WithLogger(a.logger),
		importer.WithProgressSink(sinks),
		importer.WithMetrics(collectors),
	}
	if enricher != nil {
		pipelineOpts = append(pipelineOpts, importer.WithEnricher(enricher))
	}

	pipeline, err := importer.NewPipeline(store, importer.Config{
		RunID:      opts.runID,
		Source:     path,
		Workers:    cfg.ImportWorkers,
		MaxWorkers: limiter.Capacity(),
	}, pipelineOpts...)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// writes stop at the next record boundary if another importer could
	// have taken over the store
	runCtx, release := locks.Guard(runCtx, lock)
	defer release()

	summary, err := pipeline.Run(runCtx, recs)
	if err != nil {
		return err
	}
	collectors.MarkFinished(summary.FinishedAt)

	if stderrors.Is(context.Cause(runCtx), locks.ErrLockLost) {
		printSummary(a.out, summary, opts.dryRun)
		return errors.ConnectionError("import stopped: run lock was lost", locks.ErrLockLost).
			WithContext("key", lock.Key()).
			WithContext("done", summary.Done)
	}

	if cfg.MetricsPushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := metrics.NewPusher(cfg.MetricsPushgatewayURL, cfg.MetricsJob).Push(pushCtx, collectors, summary.RunID); err != nil {
			a.logger.Warn("Failed to push metrics", logging.Err(err))
		}
	}

	if opts.dump {
		if mem, ok := store.(*memory.Store); ok {
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(mem)
		}
	}

	printSummary(a.out, summary, opts.dryRun)
	return nil
}

func printSummary(out io.Writer, s *importer.Summary, dryRun bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", s.RunID)
	fmt.Fprintf(w, "Source\t%s\n", s.Source)
	fmt.Fprintf(w, "Total\t%d\n", s.Total)
	fmt.Fprintf(w, "Succeeded\t%d\n", s.Succeeded)
	fmt.Fprintf(w, "Invalid\t%d\n", s.Invalid)
	fmt.Fprintf(w, "API failed\t%d\n", s.APIFailed)
	fmt.Fprintf(w, "Persist failed\t%d\n", s.PersistFailed)
	if s.FailureWriteErrors > 0 {
		fmt.Fprintf(w, "Failure write errors\t%d\n", s.FailureWriteErrors)
	}
	fmt.Fprintf(w, "Elapsed\t%ds\n", s.ElapsedSeconds())
	if s.Cancelled {
		fmt.Fprintf(w, "Cancelled\tafter %d of %d records\n", s.Done, s.Total)
	}
	if dryRun {
		fmt.Fprintf(w, "Dry run\tnothing was written\n")
	}
	w.Flush()
}

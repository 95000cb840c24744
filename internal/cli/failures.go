package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/storage"
)

type failuresOptions struct {
	runID  string
	stage  string
	limit  int
	asJSON bool
}

func newFailuresCommand(a *app) *cobra.Command {
	opts := &failuresOptions{}

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List failure records of an import run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return a.runFailures(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.runID, "run", "", "run identifier (default: the latest finished run)")
	cmd.Flags().StringVar(&opts.stage, "stage", "", "only failures from this stage: validation, enrichment, persistence")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum number of records to list")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print failure records as JSON")

	return cmd
}

func (a *app) runFailures(ctx context.Context, opts *failuresOptions) error {
	stage := storage.Stage(opts.stage)
	switch stage {
	case "", storage.StageValidation, storage.StageEnrichment, storage.StagePersistence:
	default:
		return errors.ConfigError(fmt.Sprintf("unknown stage %q", opts.stage))
	}
	if opts.limit < 0 {
		return errors.ConfigError("--limit must not be negative")
	}

	store, err := openStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := opts.runID
	if runID == "" {
		run, err := store.LatestRun(ctx)
		if stderrors.Is(err, storage.ErrNotFound) {
			fmt.Fprintln(a.out, "No import runs recorded")
			return nil
		}
		if err != nil {
			return err
		}
		runID = run.RunID
	}

	failures, err := store.ListFailures(ctx, storage.FailureFilter{
		RunID: runID,
		Stage: stage,
		Limit: opts.limit,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(failures)
	}
	printFailures(a.out, runID, failures)
	return nil
}

func printFailures(out io.Writer, runID string, failures []storage.FailureRecord) {
	if len(failures) == 0 {
		fmt.Fprintf(out, "No failures for run %s\n", runID)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tSKU\tSTAGE\tREASON")
	for _, f := range failures {
		reason, err := json.Marshal(f.Reason)
		if err != nil {
			reason = []byte(fmt.Sprint(f.Reason))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.Line, f.SKU, f.Stage, reason)
	}
	w.Flush()
}

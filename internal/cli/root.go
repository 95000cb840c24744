// Package cli wires configuration, storage, enrichment and the import
// pipeline behind the catalog-importer commands.
package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/config"
)

// app holds what the commands share. It is built by PersistentPreRunE.
type app struct {
	out    io.Writer
	errOut io.Writer

	envFile  string
	logLevel string
	logFile  string
	store    string

	cfg       *config.Config
	logger    logging.Logger
	logCloser io.Closer
}

// NewRootCommand builds the command tree writing to out and errOut
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "catalog-importer",
		Short: "Import product catalogs with validation, enrichment and failure tracking",
		Long: `catalog-importer validates product records, optionally enriches them through a
rate-limited HTTP API and upserts them into a store. Records that fail are
written to a failure log together with the reason.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "file with environment variables, ignored when missing")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "append logs to this file (overrides LOG_FILE)")
	rootCmd.PersistentFlags().StringVar(&a.store, "store", "", "store type: sqlite, postgres, redis, memory (overrides STORE_TYPE)")

	rootCmd.AddCommand(newImportCommand(a))
	rootCmd.AddCommand(newFailuresCommand(a))

	return rootCmd
}

// Execute runs the CLI and exits non-zero on a fatal error
func Execute() {
	rootCmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.ConfigError(fmt.Sprintf("failed to load %s: %v", a.envFile, err))
		}
	}

	cfg := config.Load()
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFile != "" {
		cfg.LogFile = a.logFile
	}
	if a.store != "" {
		cfg.StoreType = a.store
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return errors.ConfigError(err.Error())
	}

	a.cfg = cfg
	a.logCloser = closer
	a.logger = logging.GetGlobalLogger()
	return nil
}

// close flushes and releases the logger; commands defer it
func (a *app) close() {
	logging.MustSync()
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

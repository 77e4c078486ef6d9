package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tordrt/megamerge"
	"github.com/tordrt/megamerge/internal/config"
	"github.com/tordrt/megamerge/internal/logging"
)

// Exit codes
const (
	exitFailure = 1
	exitNothing = 2
)

// flags holds every command line flag. Flags override the configuration
// only when they were set explicitly.
type flags struct {
	configPath    string
	manifestPath  string
	referencePath string

	batchSize             int
	deleteOnAttachFailure bool
	identity              []string
	excludedTables        []string

	reportPath   string
	reportFormat string
	reportURL    string

	logLevel     string
	logFormat    string
	showProgress bool
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&flags{})
}

func buildRootCmd(f *flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "megamerge",
		Short: "Merge many identically structured SQLite databases into one",
		Long: `megamerge appends the rows of many SQLite databases that share one table
layout into a single target database. The first database of the list (or
--reference) is the target; its table set is the reference every other
database is checked against. Mismatching databases are reported and left
alone; merged databases are deleted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Config file (default: ~/.config/megamerge/config.yaml)")
	pf.StringVarP(&f.manifestPath, "manifest", "m", "", "File listing one database path per line")
	pf.StringVarP(&f.referencePath, "reference", "r", "", "Reference/target database; every listed path becomes a candidate")
	pf.IntVar(&f.batchSize, "batch-size", 10, "Databases attached per batch (SQLite allows at most 10)")
	pf.BoolVar(&f.deleteOnAttachFailure, "delete-on-attach-failure", false, "Also delete sources that could not be attached")
	pf.StringSliceVar(&f.identity, "identity", nil, "Column name substrings marking identity columns (default: id,ID)")
	pf.StringSliceVar(&f.excludedTables, "exclude-tables", nil, "Table name substrings to ignore (default: sqlite_)")
	pf.StringVarP(&f.reportPath, "report-path", "o", "", "Write the report to this file (default: stdout)")
	pf.StringVarP(&f.reportFormat, "report-format", "f", "text", "Report format: text, markdown, json or yaml")
	pf.StringVar(&f.reportURL, "report-url", "", "Also store exceptions in postgres://, mysql:// or sqlite:// database")
	pf.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&f.logFormat, "log-format", "console", "Log format: console or json")

	mergeCmd := newMergeCmd(f)
	mergeCmd.Flags().BoolVar(&f.showProgress, "progress", false, "Show a progress bar over merged sources")

	rootCmd.AddCommand(mergeCmd, newCheckCmd(f), newInspectCmd(f))
	return rootCmd
}

// loadConfig layers flags that were set on top of the file and environment
func (f *flags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("batch-size") {
		cfg.BatchSize = f.batchSize
	}
	if changed("delete-on-attach-failure") {
		cfg.DeleteOnAttachFailure = f.deleteOnAttachFailure
	}
	if changed("identity") {
		cfg.IdentitySubstrings = f.identity
	}
	if changed("exclude-tables") {
		cfg.ExcludedTableSubstrings = f.excludedTables
	}
	if changed("report-path") {
		cfg.ReportPath = f.reportPath
	}
	if changed("report-format") {
		cfg.ReportFormat = f.reportFormat
	}
	if changed("report-url") {
		cfg.ReportURL = f.reportURL
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// paths returns the manifest entries followed by positional arguments
func (f *flags) paths(args []string) ([]string, error) {
	var paths []string
	if f.manifestPath != "" {
		listed, err := megamerge.ReadManifestFile(f.manifestPath)
		if err != nil {
			return nil, err
		}
		paths = append(paths, listed...)
	}
	paths = append(paths, args...)

	if len(paths) == 0 {
		return nil, errors.New("no databases given (pass paths or --manifest)")
	}
	return paths, nil
}

func options(cfg *config.Config, reference string, logger *zap.Logger) *megamerge.Options {
	return &megamerge.Options{
		Reference:               reference,
		BatchSize:               cfg.BatchSize,
		IdentitySubstrings:      cfg.IdentitySubstrings,
		ExcludedTableSubstrings: cfg.ExcludedTableSubstrings,
		NormalizeTimeout:        cfg.NormalizeTimeout,
		MergeTimeout:            cfg.MergeTimeout,
		DeleteOnAttachFailure:   cfg.DeleteOnAttachFailure,
		Logger:                  logger,
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	if errors.Is(err, megamerge.ErrNoDatabasesToMerge) {
		return exitNothing
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tordrt/megamerge"
	"github.com/tordrt/megamerge/internal/report"
)

func newMergeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "merge [reference.db] [candidate.db ...]",
		Short: "Validate, normalize and merge candidates into the reference",
		Long: `Validate every candidate against the reference table set, strip constraints
and identity columns from the accepted ones, append their rows to the
reference in batches and delete them. Exits with status 2 when no candidate
could be merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			paths, err := f.paths(args)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			opts := options(cfg, f.referencePath, logger)
			if f.showProgress {
				opts.Progress = &barProgress{out: cmd.ErrOrStderr()}
			}

			start := time.Now()
			logger.Info("Starting merge", zap.Time("started", start), zap.Int("databases", len(paths)))

			result, runErr := megamerge.Merge(cmd.Context(), paths, opts)
			var r *report.Report
			if result != nil {
				r = report.FromResult(result)
				if err := publish(cmd, cfg, r, logger); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}

			logger.Info("Merge finished",
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("processed", len(r.Sources)),
				zap.Int("merged", r.MergedCount()),
				zap.Int("with_failures", len(r.FailedSources())))
			return nil
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/tordrt/megamerge"
	"github.com/tordrt/megamerge/internal/report"
)

func newCheckCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [reference.db] [candidate.db ...]",
		Short: "Validate candidates and print the merge plan without changing anything",
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

			plan, planErr := megamerge.PlanMerge(cmd.Context(), paths, options(cfg, f.referencePath, logger))
			if plan != nil {
				if err := publish(cmd, cfg, report.FromPlan(plan), logger); err != nil {
					return err
				}
			}
			return planErr
		},
	}
}

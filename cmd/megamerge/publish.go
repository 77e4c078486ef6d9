package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tordrt/megamerge/internal/config"
	"github.com/tordrt/megamerge/internal/logging"
	"github.com/tordrt/megamerge/internal/report"
)

// publish writes the report to its output and, when configured, stores the
// exceptions in the report database
func publish(cmd *cobra.Command, cfg *config.Config, r *report.Report, logger *zap.Logger) error {
	w, closeOutput, err := createOutput(cmd, cfg.ReportPath)
	if err != nil {
		return err
	}

	if err := report.Write(w, r, cfg.ReportFormat); err != nil {
		_ = closeOutput()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := closeOutput(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}

	if cfg.ReportURL == "" {
		return nil
	}

	ctx := cmd.Context()
	sink, err := report.OpenSink(ctx, cfg.ReportURL)
	if err != nil {
		return fmt.Errorf("failed to open report database %s: %w", logging.SanitizeURL(cfg.ReportURL), err)
	}
	defer func() {
		if err := sink.Close(ctx); err != nil {
			logger.Warn("Failed to close report database", zap.Error(err))
		}
	}()

	if err := sink.Write(ctx, r); err != nil {
		return fmt.Errorf("failed to store exceptions: %w", err)
	}

	logger.Info("Stored exceptions",
		zap.String("url", logging.SanitizeURL(cfg.ReportURL)),
		zap.String("run_id", r.RunID),
		zap.Int("records", len(r.Exceptions)))
	return nil
}

// createOutput opens the report destination; the returned close func is a
// no-op for stdout
func createOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, file.Close, nil
}

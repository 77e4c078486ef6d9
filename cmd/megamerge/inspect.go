package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tordrt/megamerge"
	"github.com/tordrt/megamerge/internal/formatter"
)

func newInspectCmd(f *flags) *cobra.Command {
	var (
		format    string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "inspect [database.db]",
		Short: "Show the tables and columns a merge would copy",
		Long: `Print the tables of a database as the merge sees them: excluded tables are
dropped and identity columns are listed separately. Without an argument the
reference (--reference, or the first manifest entry) is inspected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}

			path, err := f.inspectTarget(args)
			if err != nil {
				return err
			}

			s, err := megamerge.InspectReference(cmd.Context(), path, options(cfg, "", nil))
			if err != nil {
				return fmt.Errorf("failed to inspect %s: %w", path, err)
			}

			if outputDir != "" {
				if err := formatter.NewMultiFileFormatter(outputDir, format).Format(s); err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				return nil
			}

			w := cmd.OutOrStdout()
			switch format {
			case "text":
				err = formatter.NewTextFormatter(w).Format(s)
			case "markdown":
				err = formatter.NewMarkdownFormatter(w).Format(s)
			default:
				return fmt.Errorf("invalid format: %s (must be 'text' or 'markdown')", format)
			}
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or markdown")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Write an overview and one file per table to this directory")
	return cmd
}

func (f *flags) inspectTarget(args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case f.referencePath != "":
		return f.referencePath, nil
	case f.manifestPath != "":
		paths, err := megamerge.ReadManifestFile(f.manifestPath)
		if err != nil {
			return "", err
		}
		if len(paths) > 0 {
			return paths[0], nil
		}
	}
	return "", errors.New("no database to inspect (pass a path, --reference or --manifest)")
}

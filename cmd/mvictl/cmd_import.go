package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hcc-mvi-risk-server/internal/hospital"
)

var importFlags struct {
	fromHospital bool
	limit        int
	dir          string
	file         string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import assessments from the hospital API, a drop directory or a JSON export",
	RunE:  runImport,
}

func init() {
	f := importCmd.Flags()
	f.BoolVar(&importFlags.fromHospital, "hospital", false, "fetch patients from the configured hospital API")
	f.IntVar(&importFlags.limit, "limit", 100, "maximum patients to fetch from the hospital API")
	f.StringVar(&importFlags.dir, "dir", "", "directory of hospital CSV/JSON export files")
	f.StringVar(&importFlags.file, "file", "", "assessment export produced by 'mvictl export'")

	importCmd.MarkFlagsMutuallyExclusive("hospital", "dir", "file")
	importCmd.MarkFlagsOneRequired("hospital", "dir", "file")
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if importFlags.file != "" {
		f, err := os.Open(importFlags.file)
		if err != nil {
			return err
		}
		defer f.Close()

		summary, err := a.Assessments.ImportExport(ctx, f)
		if err != nil {
			return fmt.Errorf("import %s: %w", importFlags.file, err)
		}
		fmt.Fprintf(out, "Imported %d assessment(s), skipped %d existing, rejected %d\n", summary.Imported, summary.Skipped, summary.Failed)
		for _, msg := range summary.Errors {
			fmt.Fprintf(out, "  ! %s\n", msg)
		}
		return nil
	}

	var report *hospital.ImportReport
	if importFlags.fromHospital {
		report, err = a.Importer.ImportFromAPI(ctx, importFlags.limit)
		if errors.Is(err, hospital.ErrNotConfigured) {
			return fmt.Errorf("%w: set hospital.base_url in the config file", err)
		}
	} else {
		report, err = a.Importer.ImportDirectory(ctx, importFlags.dir)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Imported %d, failed %d", report.Imported, report.Failed)
	if report.Files > 0 {
		fmt.Fprintf(out, " from %d file(s)", report.Files)
	}
	fmt.Fprintln(out)
	for _, msg := range report.Errors {
		fmt.Fprintf(out, "  ! %s\n", msg)
	}
	return nil
}

package main

import (
	"github.com/spf13/cobra"
)

var exportFlags struct {
	output string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all assessments as JSON",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "-", "output file (- for stdout)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w, closeFn, err := openOutput(exportFlags.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := a.Store.ExportJSON(ctx, w); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

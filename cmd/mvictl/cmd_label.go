package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var labelFlags struct {
	patientID string
	mvi       string
}

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Record the confirmed MVI outcome for a patient",
	Long:  "Record the pathology-confirmed MVI outcome. --mvi=none clears a previous label.",
	RunE:  runLabel,
}

func init() {
	f := labelCmd.Flags()
	f.StringVar(&labelFlags.patientID, "patient", "", "patient ID (required)")
	f.StringVar(&labelFlags.mvi, "mvi", "", "true, false or none (required)")

	_ = labelCmd.MarkFlagRequired("patient")
	_ = labelCmd.MarkFlagRequired("mvi")
}

func parseOutcome(s string) (*bool, error) {
	if s == "none" || s == "null" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --mvi %q: want true, false or none", s)
	}
	return &b, nil
}

func runLabel(cmd *cobra.Command, _ []string) error {
	outcome, err := parseOutcome(labelFlags.mvi)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Assessments.RecordOutcome(ctx, labelFlags.patientID, outcome); err != nil {
		return fmt.Errorf("label %s: %w", labelFlags.patientID, err)
	}

	out := cmd.OutOrStdout()
	if outcome == nil {
		fmt.Fprintf(out, "Cleared outcome for %s\n", labelFlags.patientID)
	} else {
		fmt.Fprintf(out, "Recorded MVI=%t for %s\n", *outcome, labelFlags.patientID)
	}
	return nil
}

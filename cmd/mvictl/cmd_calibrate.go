package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/service"
)

var calibrateFlags struct {
	rescore bool
	asJSON  bool
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Refit the model on labeled assessments",
	Long: "Refit the logistic model on every labeled assessment and publish it.\n" +
		"The current model stays in effect when data is insufficient or single-class.",
	RunE: runCalibrate,
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute stored assessments with the model in effect",
	RunE:  runRescore,
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show the model in effect",
	RunE:  runModel,
}

func init() {
	f := calibrateCmd.Flags()
	f.BoolVar(&calibrateFlags.rescore, "rescore", false, "rescore stored assessments after a successful calibration")
	f.BoolVar(&calibrateFlags.asJSON, "json", false, "print the report as JSON")
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	report, err := a.Calibration.Calibrate(ctx)
	var calErr *domain.CalibrationError
	if err != nil && !(errors.As(err, &calErr) && report != nil) {
		return err
	}

	if calibrateFlags.asJSON {
		if jsonErr := printJSON(out, report); jsonErr != nil {
			return jsonErr
		}
	} else {
		printCalibrationReport(out, report)
	}
	if calErr != nil {
		return fmt.Errorf("model not updated: %s", calErr.Reason)
	}

	if calibrateFlags.rescore {
		return printRescore(cmd, a.Calibration)
	}
	return nil
}

func printCalibrationReport(out io.Writer, r *service.CalibrationReport) {
	fmt.Fprintf(out, "Status:        %s\n", r.Status)
	fmt.Fprintf(out, "Labeled cases: %d (minimum %d)\n", r.LabeledCases, r.Required)
	if r.Status != service.CalibrationApplied {
		fmt.Fprintf(out, "Reason:        %s\n", r.Reason)
		return
	}
	fmt.Fprintf(out, "Version:       %d (previous %d)\n", r.Version, r.PreviousModel)
	if r.Summary != nil {
		printSummary(out, *r.Summary)
	}
}

func runRescore(cmd *cobra.Command, _ []string) error {
	a, _, err := openApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return printRescore(cmd, a.Calibration)
}

func printRescore(cmd *cobra.Command, calibration *service.CalibrationService) error {
	report, err := calibration.Rescore(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rescored %d assessment(s) with %s model v%d (%d failed)\n",
		report.Rescored, report.Strategy, report.ModelVersion, report.Failed)
	return nil
}

func runModel(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	printSummary(out, a.Predictor.Summary())

	if a.History != nil {
		history, err := a.History.History(ctx, 5)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			fmt.Fprintln(out, "Recent versions:")
			for _, h := range history {
				fmt.Fprintf(out, "  v%d  %s  n=%d (+%d)\n", h.Version, h.TrainedAt.Format("2006-01-02 15:04"), h.SampleSize, h.PositiveCases)
			}
		}
	}
	return nil
}

func printSummary(out io.Writer, s domain.Summary) {
	fmt.Fprintf(out, "Strategy:      %s\n", s.Strategy)
	if s.Strategy == domain.StrategyCalibrated {
		fmt.Fprintf(out, "Model version: %d\n", s.Version)
		if s.TrainedAt != nil {
			fmt.Fprintf(out, "Trained at:    %s (n=%d)\n", s.TrainedAt.Format("2006-01-02 15:04:05"), s.SampleSize)
		}
	}
	fmt.Fprintf(out, "Coefficients:  AFP %.3f  PIVKA-II %.3f  tumor burden %.3f\n",
		s.Coefficients.AFP, s.Coefficients.PIVKAII, s.Coefficients.TumorBurden)
	fmt.Fprintf(out, "Point weights: AFP %d  PIVKA-II %d  tumor burden %d\n",
		s.PointWeights.AFP, s.PointWeights.PIVKAII, s.PointWeights.TumorBurden)
	fmt.Fprint(out, "Probability:  ")
	for score := 0; score < len(s.ProbabilityByScore); score++ {
		fmt.Fprintf(out, " %d=%.1f%%", score, s.ProbabilityByScore[score])
	}
	fmt.Fprintln(out)
}

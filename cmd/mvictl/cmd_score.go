package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/service"
)

var scoreFlags struct {
	patientID   string
	date        string
	afp         float64
	pivkaII     float64
	tumorBurden float64
	adjustment  int
	notes       string
	asJSON      bool
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one patient; with --patient the assessment is stored",
	RunE:  runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreFlags.patientID, "patient", "", "patient ID; stores the assessment when set")
	f.StringVar(&scoreFlags.date, "date", "", "assessment date YYYY-MM-DD (default today)")
	f.Float64Var(&scoreFlags.afp, "afp", 0, "AFP in ng/mL (required)")
	f.Float64Var(&scoreFlags.pivkaII, "pivka-ii", 0, "PIVKA-II in ng/mL (required)")
	f.Float64Var(&scoreFlags.tumorBurden, "tumor-burden", 0, "tumor burden score (required)")
	f.IntVar(&scoreFlags.adjustment, "adjustment", 0, "clinical point adjustment")
	f.StringVar(&scoreFlags.notes, "notes", "", "notes stored with the assessment")
	f.BoolVar(&scoreFlags.asJSON, "json", false, "print JSON")

	_ = scoreCmd.MarkFlagRequired("afp")
	_ = scoreCmd.MarkFlagRequired("pivka-ii")
	_ = scoreCmd.MarkFlagRequired("tumor-burden")
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	obs := domain.Observation{AFP: scoreFlags.afp, PIVKAII: scoreFlags.pivkaII, TumorBurden: scoreFlags.tumorBurden}

	var prediction *domain.Prediction
	if scoreFlags.patientID != "" {
		date := time.Now().UTC()
		if scoreFlags.date != "" {
			if date, err = time.Parse("2006-01-02", scoreFlags.date); err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
		}
		_, prediction, err = a.Assessments.Record(ctx, service.AssessmentRequest{
			PatientID:      scoreFlags.patientID,
			AssessmentDate: date,
			Observation:    obs,
			Adjustment:     scoreFlags.adjustment,
			Source:         "cli",
			Notes:          scoreFlags.notes,
		})
	} else {
		prediction, err = a.Predictor.Predict(obs, scoreFlags.adjustment)
	}
	if err != nil {
		return err
	}

	contributions, err := a.Predictor.Explain(obs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scoreFlags.asJSON {
		return printJSON(out, struct {
			*domain.Prediction
			Contributions []domain.Contribution `json:"contributions"`
		}{prediction, contributions})
	}

	fmt.Fprintf(out, "Risk:        %s\n", prediction.RiskTier)
	fmt.Fprintf(out, "Probability: %.1f%%\n", prediction.Probability)
	fmt.Fprintf(out, "Score:       %d (points %d)\n", prediction.TotalScore, prediction.Points)
	fmt.Fprintf(out, "Model:       %s", prediction.Strategy)
	if prediction.Strategy == domain.StrategyCalibrated {
		fmt.Fprintf(out, " v%d", prediction.ModelVersion)
	}
	fmt.Fprintln(out)
	if len(contributions) > 0 {
		factors := make([]string, 0, len(contributions))
		for _, c := range contributions {
			factors = append(factors, fmt.Sprintf("%s %.4g >= %.4g (+%d)", c.Factor, c.Value, c.Threshold, c.Points))
		}
		fmt.Fprintf(out, "Factors:     %s\n", strings.Join(factors, ", "))
	}
	for _, r := range prediction.Recommendations {
		fmt.Fprintf(out, "  - %s\n", r)
	}
	return nil
}

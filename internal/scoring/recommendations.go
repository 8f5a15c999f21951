package scoring

import (
	"github.com/hcc-mvi-risk-server/internal/domain"
)

var recommendations = map[domain.RiskTier][]string{
	domain.LOW: {
		"Regular follow-up every 6 months.",
		"Monitor AFP levels annually.",
		"Consider ultrasound examination yearly.",
		"Maintain healthy lifestyle.",
	},
	domain.MODERATE: {
		"Regular follow-up every 4 months.",
		"Monitor AFP and PIVKA-II levels bi-annually.",
		"Consider CT/MRI examination yearly.",
		"Evaluate potential adjuvant therapy options.",
	},
	domain.HIGH: {
		"Proceed with adjuvant therapy.",
		"Perform close monitoring every 3 months.",
		"Order MRI or CT for 3-year surveillance.",
		"Review AFP and PIVKA-II levels regularly.",
	},
}

// Recommendations returns the follow-up actions for a tier, in display order.
// Unknown tiers get the HIGH list.
func Recommendations(tier domain.RiskTier) []string {
	recs, ok := recommendations[tier]
	if !ok {
		recs = recommendations[domain.HIGH]
	}
	out := make([]string, len(recs))
	copy(out, recs)
	return out
}

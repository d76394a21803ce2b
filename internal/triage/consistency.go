package triage

import (
	"fmt"
	"math"

	"go-rash-triage/pkg/models"
)

const confidenceTolerance = 1e-6

// CheckConsistency lists the cross-field invariants a result breaks: top must
// be scored, confidence must equal top's match, triage_level must equal top's
// static tier. The upstream model is trusted for these, so callers only log.
func CheckConsistency(result *models.AnalysisResult) []string {
	if result == nil {
		return nil
	}
	var problems []string

	match, scored := result.ScoreFor(result.Top)
	if !scored {
		problems = append(problems, fmt.Sprintf("top %q is not among scored labels", result.Top))
	} else if math.Abs(match-result.Confidence) > confidenceTolerance {
		problems = append(problems, fmt.Sprintf("confidence %.4f differs from %s match %.4f", result.Confidence, result.Top, match))
	}

	if tier, ok := TierFor(result.Top); ok && string(tier) != result.TriageLevel {
		problems = append(problems, fmt.Sprintf("triage_level %q differs from %s tier %q", result.TriageLevel, result.Top, tier))
	}
	return problems
}

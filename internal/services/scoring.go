package services

import (
	"github.com/complyra/complyra-backend/internal/types"
)

// Scorer derives the final overall score for an analysis from the model's
// self-reported score and the structured findings.
type Scorer interface {
	ScoreAnalysis(result *types.ComplianceAnalysisResult) float64
}

// defaultScorer discounts the model-reported score by a deterministic penalty
// per finding, scaled by the finding's severity and confidence. Gaps weigh
// more than risk flags because a gap is a confirmed shortfall while a flag is
// an exposure.
type defaultScorer struct{}

func NewDefaultScorer() Scorer { return defaultScorer{} }

func severityPenalty(s types.Severity) float64 {
	switch s {
	case types.SeverityHigh:
		return 0.15
	case types.SeverityMedium:
		return 0.08
	case types.SeverityLow:
		return 0.03
	default:
		return 0
	}
}

func (defaultScorer) ScoreAnalysis(result *types.ComplianceAnalysisResult) float64 {
	if result == nil {
		return 0
	}
	score := types.Clamp01(result.OverallScore)
	for _, gap := range result.ComplianceGaps {
		score -= severityPenalty(gap.Severity) * types.Clamp01(gap.Confidence)
	}
	for _, flag := range result.RiskFlags {
		score -= 0.5 * severityPenalty(flag.Severity) * types.Clamp01(flag.Confidence)
	}
	return types.Clamp01(score)
}

// retrievalConfidence is the position-weighted mean similarity of the top
// matches, discounted when fewer than three matches were found.
func retrievalConfidence(similarities []float64) float64 {
	if len(similarities) == 0 {
		return 0
	}
	totalScore := 0.0
	totalWeight := 0.0
	for i, sim := range similarities {
		if i >= 3 {
			break
		}
		weight := 1.0 / float64(i+1)
		totalScore += sim * weight
		totalWeight += weight
	}
	confidence := totalScore / totalWeight
	switch {
	case len(similarities) >= 3:
	case len(similarities) == 2:
		confidence *= 0.9
	default:
		confidence *= 0.8
	}
	return types.Clamp01(confidence)
}

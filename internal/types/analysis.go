package types

import (
	"sort"
	"time"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type PolicyMatch struct {
	PolicyID          string   `json:"policyId"`
	PolicyName        string   `json:"policyName"`
	MatchScore        float64  `json:"matchScore"`
	CitedSections     []string `json:"citedSections,omitempty"`
	DocumentReference string   `json:"documentReference,omitempty"`
}

type ComplianceGap struct {
	GapType        string   `json:"gapType"`
	Severity       Severity `json:"severity"`
	Confidence     float64  `json:"confidence"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

type RiskFlag struct {
	RiskType    string   `json:"riskType"`
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
	Impact      string   `json:"impact,omitempty"`
}

// ComplianceAnalysisResult is the structured, auditable output of one
// analysis. Gaps and risks are kept in deterministic order regardless of the
// order the model emitted them.
type ComplianceAnalysisResult struct {
	DocumentID       string          `json:"documentId"`
	AnalysisType     AnalysisType    `json:"analysisType"`
	AnalysisDate     time.Time       `json:"analysisDate"`
	OverallScore     float64         `json:"overallScore"`
	ConfidenceScore  float64         `json:"confidenceScore"`
	PolicyMatches    []PolicyMatch   `json:"policyMatches"`
	ComplianceGaps   []ComplianceGap `json:"complianceGaps"`
	RiskFlags        []RiskFlag      `json:"riskFlags"`
	Recommendations  []string        `json:"recommendations"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// Normalize clamps scores into [0,1] and sorts findings by
// (severity desc, confidence desc, description asc).
func (r *ComplianceAnalysisResult) Normalize() {
	if r == nil {
		return
	}
	r.OverallScore = Clamp01(r.OverallScore)
	r.ConfidenceScore = Clamp01(r.ConfidenceScore)
	for i := range r.PolicyMatches {
		r.PolicyMatches[i].MatchScore = Clamp01(r.PolicyMatches[i].MatchScore)
	}
	for i := range r.ComplianceGaps {
		r.ComplianceGaps[i].Confidence = Clamp01(r.ComplianceGaps[i].Confidence)
	}
	for i := range r.RiskFlags {
		r.RiskFlags[i].Confidence = Clamp01(r.RiskFlags[i].Confidence)
	}

	sort.SliceStable(r.ComplianceGaps, func(i, j int) bool {
		a, b := r.ComplianceGaps[i], r.ComplianceGaps[j]
		if severityRank(a.Severity) != severityRank(b.Severity) {
			return severityRank(a.Severity) > severityRank(b.Severity)
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Description < b.Description
	})
	sort.SliceStable(r.RiskFlags, func(i, j int) bool {
		a, b := r.RiskFlags[i], r.RiskFlags[j]
		if severityRank(a.Severity) != severityRank(b.Severity) {
			return severityRank(a.Severity) > severityRank(b.Severity)
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Description < b.Description
	})
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package services

import (
	"fmt"
	"strings"

	"github.com/complyra/complyra-backend/internal/types"
)

const analysisSchemaName = "compliance_analysis"

// Token budget for retrieved context blocks. Counting is approximate at four
// characters per token, which overshoots slightly for English prose and keeps
// prompts under the model window with room to spare.
const (
	contextTokenBudget = 6000
	charsPerToken      = 4
)

// InsufficientContextAnswer is returned verbatim when retrieval finds
// nothing above the similarity threshold. It never reaches the model.
const InsufficientContextAnswer = "The knowledge base does not contain enough relevant information to answer this question. Try rephrasing the question or upload the applicable policy documents first."

func analysisSystemPrompt(analysisType types.AnalysisType) string {
	base := "You are a compliance analyst. You compare a submitted document against excerpts from an organization's policy and regulation knowledge base. " +
		"Base every finding strictly on the knowledge base excerpts provided; never invent policy names, section numbers, or requirements that do not appear in them. " +
		"Scores are fractions between 0 and 1."
	switch analysisType {
	case types.AnalysisTypeRisk:
		return base + " Focus on risk exposure: identify risk flags with severity and concrete business impact. Policy matches and gaps are secondary."
	case types.AnalysisTypePolicyMatch:
		return base + " Focus on mapping the document to specific policies: identify which policies apply, cite the matching sections, and score each match. Gaps and risks are secondary."
	default:
		return base + " Assess overall compliance: identify which policies the document satisfies, where it falls short, and what should change."
	}
}

// analysisRetrySystemPrompt is used for the single retry after the model
// returns output that does not satisfy the schema.
func analysisRetrySystemPrompt(analysisType types.AnalysisType) string {
	return analysisSystemPrompt(analysisType) +
		" Your previous response was not valid against the required JSON schema. Respond with a single JSON object that satisfies the schema exactly. No prose, no markdown fences, no comments."
}

func buildAnalysisUserPrompt(filename, documentText, contextBlock string) string {
	var b strings.Builder
	b.WriteString("## Knowledge base excerpts\n\n")
	if contextBlock == "" {
		b.WriteString("(none retrieved)\n")
	} else {
		b.WriteString(contextBlock)
	}
	b.WriteString("\n\n## Document under review: ")
	b.WriteString(filename)
	b.WriteString("\n\n")
	b.WriteString(documentText)
	return b.String()
}

func ragSystemPrompt(queryType types.QueryType) string {
	base := "You answer questions about an organization's compliance posture using only the provided knowledge base excerpts. " +
		"If the excerpts do not contain the answer, say so plainly instead of guessing. Cite the source document names you relied on."
	switch queryType {
	case types.QueryTypePolicy:
		return base + " The question concerns internal policy; quote the controlling policy language where possible."
	case types.QueryTypeRegulation:
		return base + " The question concerns external regulation; name the regulation and the obligation it creates."
	case types.QueryTypeCompliance:
		return base + " The question concerns compliance status; state what is required and whether the excerpts indicate it is met."
	default:
		return base
	}
}

func buildRAGUserPrompt(query, contextBlock string) string {
	var b strings.Builder
	b.WriteString("## Knowledge base excerpts\n\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\n## Question\n\n")
	b.WriteString(query)
	return b.String()
}

// contextEntry is one retrieved chunk heading into prompt assembly.
type contextEntry struct {
	DocumentName string
	Text         string
	Score        float64
}

// buildContextBlock concatenates entries in the given order until the token
// budget runs out. Entries that do not fit whole are skipped, not truncated,
// so the model never sees a sentence cut mid-way. Returns the block and how
// many entries were included.
func buildContextBlock(entries []contextEntry, tokenBudget int) (string, int) {
	budget := tokenBudget * charsPerToken
	var b strings.Builder
	included := 0
	for _, e := range entries {
		section := fmt.Sprintf("[Source: %s]\n%s\n\n", e.DocumentName, e.Text)
		if b.Len()+len(section) > budget {
			continue
		}
		b.WriteString(section)
		included++
	}
	return strings.TrimRight(b.String(), "\n"), included
}

func severityEnum() []string { return []string{"low", "medium", "high"} }

// analysisJSONSchema is the strict schema handed to the model for structured
// output. Keep this aligned with types.ComplianceAnalysisResult.
func analysisJSONSchema() map[string]any {
	score := map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"overallScore", "confidenceScore", "policyMatches", "complianceGaps", "riskFlags", "recommendations"},
		"properties": map[string]any{
			"overallScore":    score,
			"confidenceScore": score,
			"policyMatches": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"policyId", "policyName", "matchScore", "citedSections", "documentReference"},
					"properties": map[string]any{
						"policyId":          map[string]any{"type": "string"},
						"policyName":        map[string]any{"type": "string"},
						"matchScore":        score,
						"citedSections":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"documentReference": map[string]any{"type": "string"},
					},
				},
			},
			"complianceGaps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"gapType", "severity", "confidence", "description", "recommendation"},
					"properties": map[string]any{
						"gapType":        map[string]any{"type": "string"},
						"severity":       map[string]any{"type": "string", "enum": severityEnum()},
						"confidence":     score,
						"description":    map[string]any{"type": "string"},
						"recommendation": map[string]any{"type": "string"},
					},
				},
			},
			"riskFlags": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"riskType", "severity", "confidence", "description", "impact"},
					"properties": map[string]any{
						"riskType":    map[string]any{"type": "string"},
						"severity":    map[string]any{"type": "string", "enum": severityEnum()},
						"confidence":  score,
						"description": map[string]any{"type": "string"},
						"impact":      map[string]any{"type": "string"},
					},
				},
			},
			"recommendations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}
